package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/agentmart/agentmart/internal/marketplace"
)

// Store implements marketplace.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ marketplace.Store = (*Store)(nil)

// New opens (or creates) a SQLite store at the given path.
//
// Transactions start with BEGIN IMMEDIATE (_txlock=immediate) so that of two
// settlements racing on one purchase the loser blocks on the write lock and
// then cleanly loses the guarded decrement, instead of hitting SQLITE_BUSY
// on snapshot upgrade mid-transaction. The pragmas ride the DSN so every
// pooled connection gets them.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	dsn := "file:" + path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	developer INTEGER NOT NULL DEFAULT 0,
	token_balance INTEGER NOT NULL DEFAULT 0 CHECK(token_balance >= 0),
	active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	agent_type TEXT NOT NULL,
	developer_id INTEGER NOT NULL REFERENCES users(id),
	price_per_token REAL NOT NULL CHECK(price_per_token >= 0),
	active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS purchases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	tokens_purchased INTEGER NOT NULL CHECK(tokens_purchased > 0),
	tokens_remaining INTEGER NOT NULL CHECK(tokens_remaining >= 0 AND tokens_remaining <= tokens_purchased),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_purchases_user_agent ON purchases(user_id, agent_id, created_at DESC);
CREATE TABLE IF NOT EXISTS invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL REFERENCES users(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	purchase_id INTEGER NOT NULL REFERENCES purchases(id),
	input TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	cost INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'processing' CHECK(status IN ('processing','completed','failed')),
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_invocations_user_created ON invocations(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the backing file is still writable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

// CreateUser registers a new account with a zero balance.
func (s *Store) CreateUser(ctx context.Context, params marketplace.CreateUserParams) (*marketplace.User, error) {
	if params.Username == "" || params.PasswordHash == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "username and password hash required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users(username, email, password_hash, developer, active, created_at)
VALUES(?, ?, ?, ?, 1, ?)`,
		params.Username, params.Email, params.PasswordHash, params.Developer, now)
	if isUniqueViolation(err) {
		return nil, marketplace.Errorf(marketplace.KindConflict, "username or email already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

// FindUserByUsername returns the user or nil when absent.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*marketplace.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, developer, token_balance, active, created_at
FROM users WHERE username = ?`, username))
}

// GetUser returns the user or nil when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*marketplace.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, developer, token_balance, active, created_at
FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*marketplace.User, error) {
	var u marketplace.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Developer, &u.TokenBalance, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// CreditBalance adds amount to the user's general balance.
func (s *Store) CreditBalance(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, marketplace.Errorf(marketplace.KindInvalid, "credit amount must be positive, got %d", amount)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET token_balance = token_balance + ? WHERE id = ?`, amount, userID)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, marketplace.Errorf(marketplace.KindNotFound, "user %d not found", userID)
	}
	var balance int64
	if err := s.db.QueryRowContext(ctx, `SELECT token_balance FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// CreateAgent publishes a catalog entry.
func (s *Store) CreateAgent(ctx context.Context, params marketplace.CreateAgentParams) (*marketplace.Agent, error) {
	if params.Name == "" || params.Type == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "agent name and type required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO agents(name, description, agent_type, developer_id, price_per_token, active, created_at)
VALUES(?, ?, ?, ?, ?, 1, ?)`,
		params.Name, params.Description, string(params.Type), params.DeveloperID, params.PricePerToken, now)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("agent id: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// GetAgent returns the agent or nil when absent.
func (s *Store) GetAgent(ctx context.Context, id int64) (*marketplace.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, description, agent_type, developer_id, price_per_token, active, created_at
FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*marketplace.Agent, error) {
	var a marketplace.Agent
	var agentType string
	err := row.Scan(&a.ID, &a.Name, &a.Description, &agentType, &a.DeveloperID, &a.PricePerToken, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.Type = marketplace.AgentType(agentType)
	return &a, nil
}

// ListAgents returns catalog entries, optionally only active ones.
func (s *Store) ListAgents(ctx context.Context, activeOnly bool) ([]marketplace.Agent, error) {
	query := `
SELECT id, name, description, agent_type, developer_id, price_per_token, active, created_at
FROM agents`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

// ListAgentsByDeveloper returns all agents owned by the developer.
func (s *Store) ListAgentsByDeveloper(ctx context.Context, developerID int64) ([]marketplace.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, agent_type, developer_id, price_per_token, active, created_at
FROM agents WHERE developer_id = ? ORDER BY id`, developerID)
	if err != nil {
		return nil, fmt.Errorf("list developer agents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

func collectAgents(rows *sql.Rows) ([]marketplace.Agent, error) {
	var agents []marketplace.Agent
	for rows.Next() {
		var a marketplace.Agent
		var agentType string
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &agentType, &a.DeveloperID, &a.PricePerToken, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Type = marketplace.AgentType(agentType)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeactivateAgent marks the catalog entry inactive.
func (s *Store) DeactivateAgent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return marketplace.Errorf(marketplace.KindNotFound, "agent %d not found", id)
	}
	return nil
}

// CreatePurchase debits tokens from the user balance and creates the
// purchase in one transaction. The guarded UPDATE keeps the balance
// non-negative under concurrent purchases.
func (s *Store) CreatePurchase(ctx context.Context, userID, agentID, tokens int64) (*marketplace.Purchase, error) {
	if tokens <= 0 {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "token quantity must be positive, got %d", tokens)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE users SET token_balance = token_balance - ? WHERE id = ? AND token_balance >= ?`,
		tokens, userID, tokens)
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return nil, marketplace.Errorf(marketplace.KindNotFound, "user %d not found", userID)
		}
		return nil, marketplace.Errorf(marketplace.KindPaymentRequired, "balance too low for %d tokens", tokens)
	}

	now := time.Now().UTC()
	ins, err := tx.ExecContext(ctx, `
INSERT INTO purchases(user_id, agent_id, tokens_purchased, tokens_remaining, created_at)
VALUES(?, ?, ?, ?, ?)`, userID, agentID, tokens, tokens, now)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("purchase id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return s.GetPurchase(ctx, id)
}

// GetPurchase returns the purchase or nil when absent.
func (s *Store) GetPurchase(ctx context.Context, id int64) (*marketplace.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx, `
SELECT id, user_id, agent_id, tokens_purchased, tokens_remaining, created_at
FROM purchases WHERE id = ?`, id))
}

// LatestOpenPurchase selects the newest purchase for the pair with tokens
// remaining; nil when the user holds no open entitlement.
func (s *Store) LatestOpenPurchase(ctx context.Context, userID, agentID int64) (*marketplace.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx, `
SELECT id, user_id, agent_id, tokens_purchased, tokens_remaining, created_at
FROM purchases
WHERE user_id = ? AND agent_id = ? AND tokens_remaining > 0
ORDER BY created_at DESC, id DESC
LIMIT 1`, userID, agentID))
}

func scanPurchase(row *sql.Row) (*marketplace.Purchase, error) {
	var p marketplace.Purchase
	err := row.Scan(&p.ID, &p.UserID, &p.AgentID, &p.TokensPurchased, &p.TokensRemaining, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return &p, nil
}

// ListPurchases returns the user's purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, userID int64) ([]marketplace.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, agent_id, tokens_purchased, tokens_remaining, created_at
FROM purchases WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	var purchases []marketplace.Purchase
	for rows.Next() {
		var p marketplace.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.AgentID, &p.TokensPurchased, &p.TokensRemaining, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// OpenInvocation persists a new attempt in processing state.
func (s *Store) OpenInvocation(ctx context.Context, inv marketplace.Invocation) (*marketplace.Invocation, error) {
	if inv.UserID == 0 || inv.AgentID == 0 || inv.PurchaseID == 0 {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "invocation requires user, agent and purchase ids")
	}
	if inv.UUID == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "invocation requires a uuid")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO invocations(uuid, user_id, agent_id, purchase_id, input, status, created_at)
VALUES(?, ?, ?, ?, ?, 'processing', ?)`,
		inv.UUID, inv.UserID, inv.AgentID, inv.PurchaseID, inv.Input, now)
	if err != nil {
		return nil, fmt.Errorf("insert invocation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("invocation id: %w", err)
	}
	return s.GetInvocation(ctx, id)
}

// SettleInvocation applies the debit and the completed transition together.
// Re-settling an already-completed invocation returns the settled record
// without touching the ledger again.
func (s *Store) SettleInvocation(ctx context.Context, invocationID int64, output string, tokensUsed, cost int64) (*marketplace.Invocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var purchaseID int64
	err = tx.QueryRowContext(ctx, `
SELECT status, purchase_id FROM invocations WHERE id = ?`, invocationID).Scan(&status, &purchaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marketplace.Errorf(marketplace.KindNotFound, "invocation %d not found", invocationID)
	}
	if err != nil {
		return nil, fmt.Errorf("read invocation: %w", err)
	}
	switch marketplace.InvocationStatus(status) {
	case marketplace.StatusCompleted:
		// Idempotent replay: the debit already landed exactly once.
		return s.GetInvocation(ctx, invocationID)
	case marketplace.StatusFailed:
		return nil, marketplace.Errorf(marketplace.KindConflict, "invocation %d already failed", invocationID)
	}

	// Compare-and-swap on the entitlement: the decrement only applies when
	// the remaining balance still covers the cost at commit time.
	res, err := tx.ExecContext(ctx, `
UPDATE purchases SET tokens_remaining = tokens_remaining - ? WHERE id = ? AND tokens_remaining >= ?`,
		cost, purchaseID, cost)
	if err != nil {
		return nil, fmt.Errorf("debit purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, marketplace.Errorf(marketplace.KindRaceLost, "purchase %d cannot cover cost %d", purchaseID, cost)
	}

	now := time.Now().UTC()
	res, err = tx.ExecContext(ctx, `
UPDATE invocations
SET status = 'completed', output = ?, tokens_used = ?, cost = ?, completed_at = ?
WHERE id = ? AND status = 'processing'`,
		output, tokensUsed, cost, now, invocationID)
	if err != nil {
		return nil, fmt.Errorf("complete invocation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, marketplace.Errorf(marketplace.KindInternal, "invocation %d changed state mid-settlement", invocationID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return s.GetInvocation(ctx, invocationID)
}

// FailInvocation records the error and marks the attempt failed. Any adapter
// output is kept on the record for audit but stays unbilled (tokens_used
// remains 0). The ledger is never touched. Failing an already-failed
// invocation is a no-op.
func (s *Store) FailInvocation(ctx context.Context, invocationID int64, output, reason string) (*marketplace.Invocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM invocations WHERE id = ?`, invocationID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marketplace.Errorf(marketplace.KindNotFound, "invocation %d not found", invocationID)
	}
	if err != nil {
		return nil, fmt.Errorf("read invocation: %w", err)
	}
	switch marketplace.InvocationStatus(status) {
	case marketplace.StatusFailed:
		return s.GetInvocation(ctx, invocationID)
	case marketplace.StatusCompleted:
		return nil, marketplace.Errorf(marketplace.KindConflict, "invocation %d already completed", invocationID)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
UPDATE invocations SET status = 'failed', output = ?, error = ?, completed_at = ? WHERE id = ? AND status = 'processing'`,
		output, reason, now, invocationID); err != nil {
		return nil, fmt.Errorf("fail invocation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failure: %w", err)
	}
	return s.GetInvocation(ctx, invocationID)
}

// GetInvocation returns the invocation or nil when absent.
func (s *Store) GetInvocation(ctx context.Context, id int64) (*marketplace.Invocation, error) {
	var inv marketplace.Invocation
	var status string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
SELECT id, uuid, user_id, agent_id, purchase_id, input, output, tokens_used, cost, status, error, created_at, completed_at
FROM invocations WHERE id = ?`, id).Scan(
		&inv.ID, &inv.UUID, &inv.UserID, &inv.AgentID, &inv.PurchaseID, &inv.Input, &inv.Output,
		&inv.TokensUsed, &inv.Cost, &status, &inv.Error, &inv.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan invocation: %w", err)
	}
	inv.Status = marketplace.InvocationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		inv.CompletedAt = &t
	}
	return &inv, nil
}

// ListInvocations returns the user's latest invocations, newest first.
func (s *Store) ListInvocations(ctx context.Context, userID int64, limit int) ([]marketplace.Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, uuid, user_id, agent_id, purchase_id, input, output, tokens_used, cost, status, error, created_at, completed_at
FROM invocations
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []marketplace.Invocation
	for rows.Next() {
		var inv marketplace.Invocation
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(
			&inv.ID, &inv.UUID, &inv.UserID, &inv.AgentID, &inv.PurchaseID, &inv.Input, &inv.Output,
			&inv.TokensUsed, &inv.Cost, &status, &inv.Error, &inv.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.Status = marketplace.InvocationStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			inv.CompletedAt = &t
		}
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}

// DeveloperEarnings sums settled cost across the developer's agents.
func (s *Store) DeveloperEarnings(ctx context.Context, developerID int64) (marketplace.Earnings, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.id, a.name,
	COUNT(i.id),
	COALESCE(SUM(i.tokens_used), 0),
	COALESCE(SUM(i.cost), 0)
FROM agents a
LEFT JOIN invocations i ON i.agent_id = a.id AND i.status = 'completed'
WHERE a.developer_id = ?
GROUP BY a.id, a.name
ORDER BY a.id`, developerID)
	if err != nil {
		return marketplace.Earnings{}, fmt.Errorf("developer earnings: %w", err)
	}
	defer rows.Close()

	earnings := marketplace.Earnings{DeveloperID: developerID}
	for rows.Next() {
		var ae marketplace.AgentEarnings
		if err := rows.Scan(&ae.AgentID, &ae.AgentName, &ae.Invocations, &ae.TokensUsed, &ae.Earned); err != nil {
			return marketplace.Earnings{}, fmt.Errorf("scan earnings: %w", err)
		}
		earnings.TotalEarned += ae.Earned
		earnings.Agents = append(earnings.Agents, ae)
	}
	return earnings, rows.Err()
}
