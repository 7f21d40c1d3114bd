package marketplace

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// InvokeResult is what an agent implementation returns: the generated text
// and the usage the upstream provider attributed to the call.
type InvokeResult struct {
	Output     string
	TokensUsed int64
}

// Invoker wraps one agent implementation. Implementations build their prompt
// from the payload, perform the external model call, and report usage; they
// never touch the ledger and never retry.
type Invoker interface {
	Invoke(ctx context.Context, input Payload) (InvokeResult, error)
}

// InvokerRegistry resolves the implementation for a catalog entry by its
// stable agent type.
type InvokerRegistry interface {
	Lookup(agentType AgentType) (Invoker, bool)
}

// Coordinator orchestrates one agent call end to end: entitlement check,
// speculative invocation record, external call, then settlement or failure.
// The central property: the ledger is only ever mutated by a settlement that
// lands together with the invocation's completed state.
type Coordinator struct {
	store        Store
	entitlements *Entitlements
	registry     InvokerRegistry
	callTimeout  time.Duration
	logger       *log.Logger
}

// NewCoordinator creates a Coordinator. callTimeout bounds the external
// adapter call; zero means no timeout beyond the caller's context.
func NewCoordinator(store Store, entitlements *Entitlements, registry InvokerRegistry, callTimeout time.Duration) *Coordinator {
	return &Coordinator{
		store:        store,
		entitlements: entitlements,
		registry:     registry,
		callTimeout:  callTimeout,
		logger:       log.New(log.Writer(), "[agentmart/coordinator] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (c *Coordinator) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Invoke runs a single invocation attempt for the user against the agent.
//
// The invocation record is persisted in processing state before the external
// call so every attempt is auditable even across a crash. Adapter failures
// and timeouts drive the record to failed with no debit. On success the cost
// debit and the completed transition land in one store transaction; if a
// concurrent invocation drained the purchase first, one retry of the
// check-and-decrement is attempted before the attempt fails with KindRaceLost.
func (c *Coordinator) Invoke(ctx context.Context, userID, agentID int64, input Payload) (*Invocation, error) {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, Errorf(KindNotFound, "agent %d not found", agentID)
	}
	if !agent.Active {
		return nil, Errorf(KindNotFound, "agent %d is deactivated", agentID)
	}
	invoker, ok := c.registry.Lookup(agent.Type)
	if !ok {
		return nil, Errorf(KindNotFound, "no implementation registered for agent type %q", agent.Type)
	}

	purchase, err := c.entitlements.FindEntitlement(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, Errorf(KindPaymentRequired, "no entitlement for agent %d", agentID)
	}
	// Optimistic pre-check against the cost of a single token. Not a
	// reservation: the settlement transaction re-checks at commit time.
	if minCost := agent.Cost(1); purchase.TokensRemaining < minCost {
		return nil, Errorf(KindPaymentRequired, "purchase %d exhausted (%d tokens remaining)", purchase.ID, purchase.TokensRemaining)
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, WrapErr(KindInvalid, err, "encode input payload")
	}
	inv, err := c.store.OpenInvocation(ctx, Invocation{
		UUID:       uuid.NewString(),
		UserID:     userID,
		AgentID:    agentID,
		PurchaseID: purchase.ID,
		Input:      string(inputJSON),
	})
	if err != nil {
		return nil, err
	}
	c.logf("invocation opened id=%d uuid=%s user=%d agent=%d purchase=%d", inv.ID, inv.UUID, userID, agentID, purchase.ID)

	result, err := c.callAdapter(ctx, invoker, input)
	if err != nil {
		// The external call failed or timed out: terminal failed state,
		// ledger untouched.
		failed, failErr := c.store.FailInvocation(ctx, inv.ID, "", err.Error())
		if failErr != nil {
			c.logf("invocation %d: record failure: %v (original error: %v)", inv.ID, failErr, err)
			return nil, failErr
		}
		c.logf("invocation failed id=%d agent=%d: %v", inv.ID, agentID, err)
		return failed, WrapErr(KindAgentError, err, "agent call failed")
	}

	cost := agent.Cost(result.TokensUsed)
	settled, err := c.store.SettleInvocation(ctx, inv.ID, result.Output, result.TokensUsed, cost)
	if IsKind(err, KindRaceLost) {
		// Entitlement changed under us; re-check once before giving up.
		settled, err = c.store.SettleInvocation(ctx, inv.ID, result.Output, result.TokensUsed, cost)
	}
	if err != nil {
		// Whatever went wrong, the attempt must not stay processing. The
		// output is kept on the failed record for auditability but is never
		// billed; tokens_used stays zero on the ledger.
		if IsKind(err, KindRaceLost) {
			if _, failErr := c.store.FailInvocation(ctx, inv.ID, result.Output, "settlement lost to a concurrent invocation"); failErr != nil {
				c.logf("invocation %d: record race loss: %v", inv.ID, failErr)
			}
			c.logf("invocation race lost id=%d purchase=%d cost=%d", inv.ID, purchase.ID, cost)
			return nil, Errorf(KindRaceLost, "purchase %d drained by a concurrent invocation", purchase.ID)
		}
		if _, failErr := c.store.FailInvocation(ctx, inv.ID, result.Output, "settlement failed: "+err.Error()); failErr != nil {
			c.logf("invocation %d: record settlement failure: %v (original error: %v)", inv.ID, failErr, err)
		}
		return nil, err
	}
	c.logf("invocation settled id=%d tokens_used=%d cost=%d", settled.ID, settled.TokensUsed, settled.Cost)
	return settled, nil
}

func (c *Coordinator) callAdapter(ctx context.Context, invoker Invoker, input Payload) (InvokeResult, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return invoker.Invoke(ctx, input)
}
