package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// register pgx stdlib driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agentmart/agentmart/internal/marketplace"
)

// Store implements marketplace.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ marketplace.Store = (*Store)(nil)

// New opens a PostgreSQL-backed store using the provided DSN and connection
// pool settings. Zero values leave the pool at driver defaults.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
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
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	developer BOOLEAN NOT NULL DEFAULT FALSE,
	token_balance BIGINT NOT NULL DEFAULT 0 CHECK(token_balance >= 0),
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS agents (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	agent_type TEXT NOT NULL,
	developer_id BIGINT NOT NULL REFERENCES users(id),
	price_per_token DOUBLE PRECISION NOT NULL CHECK(price_per_token >= 0),
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS purchases (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	agent_id BIGINT NOT NULL REFERENCES agents(id),
	tokens_purchased BIGINT NOT NULL CHECK(tokens_purchased > 0),
	tokens_remaining BIGINT NOT NULL CHECK(tokens_remaining >= 0 AND tokens_remaining <= tokens_purchased),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_purchases_user_agent ON purchases(user_id, agent_id, created_at DESC);
CREATE TABLE IF NOT EXISTS invocations (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	user_id BIGINT NOT NULL REFERENCES users(id),
	agent_id BIGINT NOT NULL REFERENCES agents(id),
	purchase_id BIGINT NOT NULL REFERENCES purchases(id),
	input TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	tokens_used BIGINT NOT NULL DEFAULT 0,
	cost BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'processing' CHECK(status IN ('processing','completed','failed')),
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
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

// Ping verifies the connection pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

const userColumns = `id, username, email, password_hash, developer, token_balance, active, created_at`

// CreateUser registers a new account with a zero balance.
func (s *Store) CreateUser(ctx context.Context, params marketplace.CreateUserParams) (*marketplace.User, error) {
	if params.Username == "" || params.PasswordHash == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "username and password hash required")
	}
	var u marketplace.User
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users (username, email, password_hash, developer)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns,
		params.Username, params.Email, params.PasswordHash, params.Developer).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Developer, &u.TokenBalance, &u.Active, &u.CreatedAt)
	if isUniqueViolation(err) {
		return nil, marketplace.Errorf(marketplace.KindConflict, "username or email already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// FindUserByUsername returns the user or nil when absent.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*marketplace.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// GetUser returns the user or nil when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*marketplace.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func scanUser(row *sql.Row) (*marketplace.User, error) {
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
	var balance int64
	err := s.db.QueryRowContext(ctx, `
UPDATE users SET token_balance = token_balance + $1 WHERE id = $2
RETURNING token_balance`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, marketplace.Errorf(marketplace.KindNotFound, "user %d not found", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

const agentColumns = `id, name, description, agent_type, developer_id, price_per_token, active, created_at`

// CreateAgent publishes a catalog entry.
func (s *Store) CreateAgent(ctx context.Context, params marketplace.CreateAgentParams) (*marketplace.Agent, error) {
	if params.Name == "" || params.Type == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "agent name and type required")
	}
	var a marketplace.Agent
	var agentType string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO agents (name, description, agent_type, developer_id, price_per_token)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+agentColumns,
		params.Name, params.Description, string(params.Type), params.DeveloperID, params.PricePerToken).Scan(
		&a.ID, &a.Name, &a.Description, &agentType, &a.DeveloperID, &a.PricePerToken, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	a.Type = marketplace.AgentType(agentType)
	return &a, nil
}

// GetAgent returns the agent or nil when absent.
func (s *Store) GetAgent(ctx context.Context, id int64) (*marketplace.Agent, error) {
	return scanAgent(s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
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
	query := `SELECT ` + agentColumns + ` FROM agents`
	if activeOnly {
		query += ` WHERE active`
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE developer_id = $1 ORDER BY id`, developerID)
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
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return marketplace.Errorf(marketplace.KindNotFound, "agent %d not found", id)
	}
	return nil
}

const purchaseColumns = `id, user_id, agent_id, tokens_purchased, tokens_remaining, created_at`

// CreatePurchase debits tokens from the user balance and creates the
// purchase in one transaction, locking the user row for the debit.
func (s *Store) CreatePurchase(ctx context.Context, userID, agentID, tokens int64) (*marketplace.Purchase, error) {
	if tokens <= 0 {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "token quantity must be positive, got %d", tokens)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT token_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marketplace.Errorf(marketplace.KindNotFound, "user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if balance < tokens {
		return nil, marketplace.Errorf(marketplace.KindPaymentRequired, "balance too low for %d tokens", tokens)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET token_balance = token_balance - $1 WHERE id = $2`, tokens, userID); err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	var p marketplace.Purchase
	err = tx.QueryRowContext(ctx, `
INSERT INTO purchases (user_id, agent_id, tokens_purchased, tokens_remaining)
VALUES ($1, $2, $3, $3)
RETURNING `+purchaseColumns, userID, agentID, tokens).Scan(
		&p.ID, &p.UserID, &p.AgentID, &p.TokensPurchased, &p.TokensRemaining, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return &p, nil
}

// GetPurchase returns the purchase or nil when absent.
func (s *Store) GetPurchase(ctx context.Context, id int64) (*marketplace.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
}

// LatestOpenPurchase selects the newest purchase for the pair with tokens
// remaining; nil when the user holds no open entitlement.
func (s *Store) LatestOpenPurchase(ctx context.Context, userID, agentID int64) (*marketplace.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx, `
SELECT `+purchaseColumns+`
FROM purchases
WHERE user_id = $1 AND agent_id = $2 AND tokens_remaining > 0
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
SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
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

const invocationColumns = `id, uuid, user_id, agent_id, purchase_id, input, output, tokens_used, cost, status, error, created_at, completed_at`

// OpenInvocation persists a new attempt in processing state.
func (s *Store) OpenInvocation(ctx context.Context, inv marketplace.Invocation) (*marketplace.Invocation, error) {
	if inv.UserID == 0 || inv.AgentID == 0 || inv.PurchaseID == 0 {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "invocation requires user, agent and purchase ids")
	}
	if inv.UUID == "" {
		return nil, marketplace.Errorf(marketplace.KindInvalid, "invocation requires a uuid")
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO invocations (uuid, user_id, agent_id, purchase_id, input, status)
VALUES ($1, $2, $3, $4, $5, 'processing')
RETURNING `+invocationColumns,
		inv.UUID, inv.UserID, inv.AgentID, inv.PurchaseID, inv.Input)
	out, err := scanInvocation(row)
	if err != nil {
		return nil, fmt.Errorf("insert invocation: %w", err)
	}
	return out, nil
}

// SettleInvocation applies the debit and the completed transition together,
// locking both rows. Re-settling a completed invocation is idempotent.
func (s *Store) SettleInvocation(ctx context.Context, invocationID int64, output string, tokensUsed, cost int64) (*marketplace.Invocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var purchaseID int64
	err = tx.QueryRowContext(ctx, `
SELECT status, purchase_id FROM invocations WHERE id = $1 FOR UPDATE`, invocationID).Scan(&status, &purchaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marketplace.Errorf(marketplace.KindNotFound, "invocation %d not found", invocationID)
	}
	if err != nil {
		return nil, fmt.Errorf("read invocation: %w", err)
	}
	switch marketplace.InvocationStatus(status) {
	case marketplace.StatusCompleted:
		return s.GetInvocation(ctx, invocationID)
	case marketplace.StatusFailed:
		return nil, marketplace.Errorf(marketplace.KindConflict, "invocation %d already failed", invocationID)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE purchases SET tokens_remaining = tokens_remaining - $1 WHERE id = $2 AND tokens_remaining >= $1`,
		cost, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("debit purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, marketplace.Errorf(marketplace.KindRaceLost, "purchase %d cannot cover cost %d", purchaseID, cost)
	}

	row := tx.QueryRowContext(ctx, `
UPDATE invocations
SET status = 'completed', output = $1, tokens_used = $2, cost = $3, completed_at = NOW()
WHERE id = $4 AND status = 'processing'
RETURNING `+invocationColumns,
		output, tokensUsed, cost, invocationID)
	settled, err := scanInvocation(row)
	if err != nil {
		return nil, fmt.Errorf("complete invocation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return settled, nil
}

// FailInvocation records the error and marks the attempt failed with no
// ledger effect. Any adapter output is kept on the record for audit but
// stays unbilled. Failing an already-failed invocation is a no-op.
func (s *Store) FailInvocation(ctx context.Context, invocationID int64, output, reason string) (*marketplace.Invocation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM invocations WHERE id = $1 FOR UPDATE`, invocationID).Scan(&status)
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

	row := tx.QueryRowContext(ctx, `
UPDATE invocations SET status = 'failed', output = $1, error = $2, completed_at = NOW()
WHERE id = $3 AND status = 'processing'
RETURNING `+invocationColumns, output, reason, invocationID)
	failed, err := scanInvocation(row)
	if err != nil {
		return nil, fmt.Errorf("fail invocation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failure: %w", err)
	}
	return failed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row rowScanner) (*marketplace.Invocation, error) {
	var inv marketplace.Invocation
	var status string
	var completedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.UUID, &inv.UserID, &inv.AgentID, &inv.PurchaseID, &inv.Input, &inv.Output,
		&inv.TokensUsed, &inv.Cost, &status, &inv.Error, &inv.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = marketplace.InvocationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		inv.CompletedAt = &t
	}
	return &inv, nil
}

// GetInvocation returns the invocation or nil when absent.
func (s *Store) GetInvocation(ctx context.Context, id int64) (*marketplace.Invocation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations WHERE id = $1`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan invocation: %w", err)
	}
	return inv, nil
}

// ListInvocations returns the user's latest invocations, newest first.
func (s *Store) ListInvocations(ctx context.Context, userID int64, limit int) ([]marketplace.Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+invocationColumns+`
FROM invocations
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []marketplace.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, *inv)
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
WHERE a.developer_id = $1
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
