package marketplace

import "context"

// CreateUserParams carries the fields needed to register an account.
type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	Developer    bool
}

// CreateAgentParams carries the fields needed to publish a catalog entry.
type CreateAgentParams struct {
	Name          string
	Description   string
	Type          AgentType
	DeveloperID   int64
	PricePerToken float64
}

// Store is the persistence boundary for the marketplace ledger. Backends
// must provide per-call atomicity: CreatePurchase pairs the balance debit
// with the purchase insert, and SettleInvocation pairs the entitlement debit
// with the invocation's terminal transition, each inside one transaction.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	// CreditBalance adds amount to the user's general balance and returns
	// the new balance. Amount must be positive.
	CreditBalance(ctx context.Context, userID, amount int64) (int64, error)

	// Agents.
	CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error)
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error)
	ListAgentsByDeveloper(ctx context.Context, developerID int64) ([]Agent, error)
	DeactivateAgent(ctx context.Context, id int64) error

	// Purchases. CreatePurchase debits tokens from the user balance and
	// creates the purchase in one transaction; it fails with
	// KindPaymentRequired when the balance cannot cover the grant.
	CreatePurchase(ctx context.Context, userID, agentID, tokens int64) (*Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	// LatestOpenPurchase returns the most recently created purchase for the
	// (user, agent) pair with tokens remaining, or nil when none exists.
	LatestOpenPurchase(ctx context.Context, userID, agentID int64) (*Purchase, error)
	ListPurchases(ctx context.Context, userID int64) ([]Purchase, error)

	// Invocations. OpenInvocation persists the attempt in processing state
	// before any external call is made. SettleInvocation debits cost from
	// the purchase (compare-and-swap on tokens_remaining) and marks the
	// invocation completed in the same transaction; a lost CAS fails with
	// KindRaceLost and leaves the ledger untouched. Replaying a settle
	// against an already-completed invocation returns the settled record
	// without a second debit. FailInvocation records the error (plus any
	// unbilled adapter output, for auditability) and marks
	// the invocation failed with no ledger effect.
	OpenInvocation(ctx context.Context, inv Invocation) (*Invocation, error)
	SettleInvocation(ctx context.Context, invocationID int64, output string, tokensUsed, cost int64) (*Invocation, error)
	FailInvocation(ctx context.Context, invocationID int64, output, reason string) (*Invocation, error)
	GetInvocation(ctx context.Context, id int64) (*Invocation, error)
	ListInvocations(ctx context.Context, userID int64, limit int) ([]Invocation, error)

	// DeveloperEarnings sums settled cost across the developer's agents.
	DeveloperEarnings(ctx context.Context, developerID int64) (Earnings, error)

	Close() error
}
