package marketplace

import (
	"context"
	"log"
)

// Entitlements decides whether a user may call an agent and converts general
// balance into purchase-scoped token grants.
type Entitlements struct {
	store  Store
	logger *log.Logger
}

// NewEntitlements creates an entitlement manager over the given store.
func NewEntitlements(store Store) *Entitlements {
	return &Entitlements{
		store:  store,
		logger: log.New(log.Writer(), "[agentmart/entitlements] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (e *Entitlements) SetLogger(logger *log.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Entitlements) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Purchase converts tokens from the user's general balance into an
// entitlement for the agent. The balance debit and the purchase insert are
// one atomic step; tokens convert 1:1.
func (e *Entitlements) Purchase(ctx context.Context, userID, agentID, tokens int64) (*Purchase, error) {
	if tokens <= 0 {
		return nil, Errorf(KindInvalid, "token quantity must be positive, got %d", tokens)
	}
	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, Errorf(KindNotFound, "agent %d not found", agentID)
	}
	if !agent.Active {
		return nil, Errorf(KindNotFound, "agent %d is deactivated", agentID)
	}
	purchase, err := e.store.CreatePurchase(ctx, userID, agentID, tokens)
	if err != nil {
		e.logf("purchase failed user=%d agent=%d tokens=%d: %v", userID, agentID, tokens, err)
		return nil, err
	}
	e.logf("purchase created id=%d user=%d agent=%d tokens=%d", purchase.ID, userID, agentID, tokens)
	return purchase, nil
}

// FindEntitlement returns the purchase an invocation should draw from:
// the most recently created purchase for the (user, agent) pair with tokens
// remaining. Returns nil when the user holds no open entitlement.
func (e *Entitlements) FindEntitlement(ctx context.Context, userID, agentID int64) (*Purchase, error) {
	return e.store.LatestOpenPurchase(ctx, userID, agentID)
}
