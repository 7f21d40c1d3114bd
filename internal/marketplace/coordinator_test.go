package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memStore is a minimal in-memory Store for exercising the coordinator's
// orchestration without a database. settleErrs queues forced outcomes for
// successive SettleInvocation calls.
type memStore struct {
	users       map[int64]*User
	agents      map[int64]*Agent
	purchases   map[int64]*Purchase
	invocations map[int64]*Invocation
	nextInvID   int64

	settleErrs []error
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[int64]*User),
		agents:      make(map[int64]*Agent),
		purchases:   make(map[int64]*Purchase),
		invocations: make(map[int64]*Invocation),
	}
}

func (m *memStore) addAgent(a Agent) *Agent {
	copied := a
	m.agents[a.ID] = &copied
	return &copied
}

func (m *memStore) addPurchase(p Purchase) *Purchase {
	copied := p
	m.purchases[p.ID] = &copied
	return &copied
}

func (m *memStore) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return nil, nil
}

func (m *memStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return m.users[id], nil
}

func (m *memStore) CreditBalance(ctx context.Context, userID, amount int64) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memStore) CreateAgent(ctx context.Context, params CreateAgentParams) (*Agent, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	return m.agents[id], nil
}

func (m *memStore) ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error) {
	return nil, nil
}

func (m *memStore) ListAgentsByDeveloper(ctx context.Context, developerID int64) ([]Agent, error) {
	return nil, nil
}

func (m *memStore) DeactivateAgent(ctx context.Context, id int64) error { return nil }

func (m *memStore) CreatePurchase(ctx context.Context, userID, agentID, tokens int64) (*Purchase, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	return m.purchases[id], nil
}

func (m *memStore) LatestOpenPurchase(ctx context.Context, userID, agentID int64) (*Purchase, error) {
	var best *Purchase
	for _, p := range m.purchases {
		if p.UserID != userID || p.AgentID != agentID || p.TokensRemaining <= 0 {
			continue
		}
		if best == nil || p.ID > best.ID {
			best = p
		}
	}
	return best, nil
}

func (m *memStore) ListPurchases(ctx context.Context, userID int64) ([]Purchase, error) {
	return nil, nil
}

func (m *memStore) OpenInvocation(ctx context.Context, inv Invocation) (*Invocation, error) {
	m.nextInvID++
	inv.ID = m.nextInvID
	inv.Status = StatusProcessing
	inv.CreatedAt = time.Now().UTC()
	copied := inv
	m.invocations[inv.ID] = &copied
	return &copied, nil
}

func (m *memStore) SettleInvocation(ctx context.Context, invocationID int64, output string, tokensUsed, cost int64) (*Invocation, error) {
	if len(m.settleErrs) > 0 {
		err := m.settleErrs[0]
		m.settleErrs = m.settleErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	inv, ok := m.invocations[invocationID]
	if !ok {
		return nil, Errorf(KindNotFound, "invocation %d not found", invocationID)
	}
	if inv.Status == StatusCompleted {
		return inv, nil
	}
	p := m.purchases[inv.PurchaseID]
	if p == nil || p.TokensRemaining < cost {
		return nil, Errorf(KindRaceLost, "purchase cannot cover cost %d", cost)
	}
	p.TokensRemaining -= cost
	now := time.Now().UTC()
	inv.Status = StatusCompleted
	inv.Output = output
	inv.TokensUsed = tokensUsed
	inv.Cost = cost
	inv.CompletedAt = &now
	return inv, nil
}

func (m *memStore) FailInvocation(ctx context.Context, invocationID int64, output, reason string) (*Invocation, error) {
	inv, ok := m.invocations[invocationID]
	if !ok {
		return nil, Errorf(KindNotFound, "invocation %d not found", invocationID)
	}
	if inv.Status == StatusCompleted {
		return nil, Errorf(KindConflict, "invocation %d already completed", invocationID)
	}
	now := time.Now().UTC()
	inv.Status = StatusFailed
	inv.Output = output
	inv.Error = reason
	inv.CompletedAt = &now
	return inv, nil
}

func (m *memStore) GetInvocation(ctx context.Context, id int64) (*Invocation, error) {
	return m.invocations[id], nil
}

func (m *memStore) ListInvocations(ctx context.Context, userID int64, limit int) ([]Invocation, error) {
	return nil, nil
}

func (m *memStore) DeveloperEarnings(ctx context.Context, developerID int64) (Earnings, error) {
	return Earnings{}, nil
}

func (m *memStore) Close() error { return nil }

var _ Store = (*memStore)(nil)

// stubInvoker returns a fixed result or error.
type stubInvoker struct {
	result InvokeResult
	err    error
	block  bool
}

func (s stubInvoker) Invoke(ctx context.Context, input Payload) (InvokeResult, error) {
	if s.block {
		<-ctx.Done()
		return InvokeResult{}, ctx.Err()
	}
	return s.result, s.err
}

type stubRegistry map[AgentType]Invoker

func (r stubRegistry) Lookup(agentType AgentType) (Invoker, bool) {
	inv, ok := r[agentType]
	return inv, ok
}

func testCoordinator(store Store, registry InvokerRegistry, timeout time.Duration) *Coordinator {
	c := NewCoordinator(store, NewEntitlements(store), registry, timeout)
	return c
}

func TestInvokeSettlesUsage(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 1000, TokensRemaining: 1000})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "looks good", TokensUsed: 45}}}

	inv, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"code": "x = 1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.Status != StatusCompleted || inv.Output != "looks good" {
		t.Fatalf("invocation = %+v", inv)
	}
	if inv.TokensUsed != 45 || inv.Cost != 45 {
		t.Fatalf("usage = %d cost = %d, want 45/45", inv.TokensUsed, inv.Cost)
	}
	if remaining := store.purchases[10].TokensRemaining; remaining != 955 {
		t.Fatalf("remaining = %d, want 955", remaining)
	}
}

func TestInvokeRoundsCostUp(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeWritingAssistant, PricePerToken: 0.002, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	registry := stubRegistry{AgentTypeWritingAssistant: stubInvoker{result: InvokeResult{Output: "ok", TokensUsed: 100}}}

	inv, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	// 100 * 0.002 = 0.2 rounds up to 1.
	if inv.Cost != 1 {
		t.Fatalf("cost = %d, want 1", inv.Cost)
	}
}

func TestInvokeUnknownAgent(t *testing.T) {
	store := newMemStore()
	_, err := testCoordinator(store, stubRegistry{}, 0).Invoke(context.Background(), 7, 99, Payload{"x": "y"})
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestInvokeInactiveAgent(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: false})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{}}
	_, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestInvokeWithoutEntitlement(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "x", TokensUsed: 1}}}

	_, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindPaymentRequired) {
		t.Fatalf("err = %v, want payment_required", err)
	}
	if len(store.invocations) != 0 {
		t.Fatalf("no invocation should be opened before the entitlement check")
	}
}

func TestInvokeAdapterFailureIsUnbilled(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{err: errors.New("upstream 500")}}

	inv, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindAgentError) {
		t.Fatalf("err = %v, want agent_error", err)
	}
	if inv == nil || inv.Status != StatusFailed {
		t.Fatalf("invocation = %+v, want failed record", inv)
	}
	if remaining := store.purchases[10].TokensRemaining; remaining != 100 {
		t.Fatalf("remaining = %d, failed attempt was billed", remaining)
	}
}

func TestInvokeTimeoutFailsAttempt(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{block: true}}

	inv, err := testCoordinator(store, registry, 10*time.Millisecond).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindAgentError) {
		t.Fatalf("err = %v, want agent_error", err)
	}
	if inv == nil || inv.Status != StatusFailed {
		t.Fatalf("invocation = %+v, want failed record", inv)
	}
}

func TestInvokeRetriesLostSettlementOnce(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	store.settleErrs = []error{Errorf(KindRaceLost, "synthetic race")}
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "ok", TokensUsed: 20}}}

	inv, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if err != nil {
		t.Fatalf("Invoke after one race: %v", err)
	}
	if inv.Status != StatusCompleted || inv.Cost != 20 {
		t.Fatalf("invocation = %+v", inv)
	}
}

func TestInvokeSettlementErrorEndsTerminal(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	store.settleErrs = []error{Errorf(KindInternal, "store unavailable")}
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "ok", TokensUsed: 20}}}

	_, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindInternal) {
		t.Fatalf("err = %v, want internal", err)
	}
	record := store.invocations[1]
	if record == nil || record.Status != StatusFailed {
		t.Fatalf("record = %+v, settlement failure left the attempt non-terminal", record)
	}
	if remaining := store.purchases[10].TokensRemaining; remaining != 100 {
		t.Fatalf("remaining = %d, failed settlement was billed", remaining)
	}
}

func TestInvokeGivesUpAfterSecondRace(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 100})
	store.settleErrs = []error{
		Errorf(KindRaceLost, "synthetic race"),
		Errorf(KindRaceLost, "synthetic race"),
	}
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "ok", TokensUsed: 20}}}

	_, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindRaceLost) {
		t.Fatalf("err = %v, want race_lost", err)
	}
	record := store.invocations[1]
	if record == nil || record.Status != StatusFailed {
		t.Fatalf("record = %+v, want failed", record)
	}
	// The unbilled output survives on the failed record for audit.
	if record.Output != "ok" || record.TokensUsed != 0 {
		t.Fatalf("record output=%q tokens_used=%d, want output kept and nothing billed", record.Output, record.TokensUsed)
	}
	if remaining := store.purchases[10].TokensRemaining; remaining != 100 {
		t.Fatalf("remaining = %d, lost settlement was billed", remaining)
	}
}

func TestInvokeExhaustedEntitlement(t *testing.T) {
	store := newMemStore()
	store.addAgent(Agent{ID: 1, Type: AgentTypeCodeReviewer, PricePerToken: 1.0, Active: true})
	store.addPurchase(Purchase{ID: 10, UserID: 7, AgentID: 1, TokensPurchased: 100, TokensRemaining: 0})
	registry := stubRegistry{AgentTypeCodeReviewer: stubInvoker{result: InvokeResult{Output: "x", TokensUsed: 1}}}

	_, err := testCoordinator(store, registry, 0).Invoke(context.Background(), 7, 1, Payload{"x": "y"})
	if !IsKind(err, KindPaymentRequired) {
		t.Fatalf("err = %v, want payment_required", err)
	}
}
