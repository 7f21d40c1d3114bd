package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/agentmart/agentmart/internal/marketplace"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "marketplace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, username string, developer bool) *marketplace.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), marketplace.CreateUserParams{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Developer:    developer,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func seedAgent(t *testing.T, s *Store, developerID int64, price float64) *marketplace.Agent {
	t.Helper()
	agent, err := s.CreateAgent(context.Background(), marketplace.CreateAgentParams{
		Name:          "Code Reviewer",
		Description:   "reviews code",
		Type:          marketplace.AgentTypeCodeReviewer,
		DeveloperID:   developerID,
		PricePerToken: price,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func openInvocation(t *testing.T, s *Store, userID, agentID, purchaseID int64) *marketplace.Invocation {
	t.Helper()
	inv, err := s.OpenInvocation(context.Background(), marketplace.Invocation{
		UUID:       uuid.NewString(),
		UserID:     userID,
		AgentID:    agentID,
		PurchaseID: purchaseID,
		Input:      `{"code":"print(1)"}`,
	})
	if err != nil {
		t.Fatalf("open invocation: %v", err)
	}
	if inv.Status != marketplace.StatusProcessing {
		t.Fatalf("status = %s, want processing", inv.Status)
	}
	return inv
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newStore(t)
	seedUser(t, s, "alice", false)
	_, err := s.CreateUser(context.Background(), marketplace.CreateUserParams{
		Username: "alice", Email: "other@example.com", PasswordHash: "x",
	})
	if !marketplace.IsKind(err, marketplace.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestCreditBalance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "alice", false)

	balance, err := s.CreditBalance(ctx, user.ID, 500)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 500 {
		t.Fatalf("balance = %d, want 500", balance)
	}
	if _, err := s.CreditBalance(ctx, user.ID, 0); !marketplace.IsKind(err, marketplace.KindInvalid) {
		t.Fatalf("zero credit err = %v, want invalid", err)
	}
	if _, err := s.CreditBalance(ctx, 9999, 10); !marketplace.IsKind(err, marketplace.KindNotFound) {
		t.Fatalf("unknown user err = %v, want not_found", err)
	}
}

func TestCreatePurchaseDebitsBalance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)

	if _, err := s.CreditBalance(ctx, user.ID, 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 1000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if p.TokensPurchased != 1000 || p.TokensRemaining != 1000 {
		t.Fatalf("purchase = %+v", p)
	}

	fresh, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if fresh.TokenBalance != 0 {
		t.Fatalf("balance = %d, want 0", fresh.TokenBalance)
	}

	// Balance is empty now: a second purchase must be rejected whole.
	if _, err := s.CreatePurchase(ctx, user.ID, agent.ID, 1); !marketplace.IsKind(err, marketplace.KindPaymentRequired) {
		t.Fatalf("err = %v, want payment_required", err)
	}
	if _, err := s.CreatePurchase(ctx, 9999, agent.ID, 1); !marketplace.IsKind(err, marketplace.KindNotFound) {
		t.Fatalf("unknown user err = %v, want not_found", err)
	}
}

func TestSettleInvocation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 1000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := openInvocation(t, s, user.ID, agent.ID, p.ID)

	settled, err := s.SettleInvocation(ctx, inv.ID, "review text", 45, 45)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != marketplace.StatusCompleted {
		t.Fatalf("status = %s, want completed", settled.Status)
	}
	if settled.TokensUsed != 45 || settled.Cost != 45 || settled.Output != "review text" {
		t.Fatalf("settled = %+v", settled)
	}
	if settled.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	after, err := s.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if after.TokensRemaining != 955 {
		t.Fatalf("remaining = %d, want 955", after.TokensRemaining)
	}
}

func TestSettleInvocationIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 100)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := openInvocation(t, s, user.ID, agent.ID, p.ID)

	if _, err := s.SettleInvocation(ctx, inv.ID, "out", 30, 30); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// Replay must return the settled record without a second debit.
	replay, err := s.SettleInvocation(ctx, inv.ID, "out", 30, 30)
	if err != nil {
		t.Fatalf("replay settle: %v", err)
	}
	if replay.Status != marketplace.StatusCompleted {
		t.Fatalf("replay status = %s", replay.Status)
	}
	after, err := s.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if after.TokensRemaining != 70 {
		t.Fatalf("remaining = %d, want 70 (double debit?)", after.TokensRemaining)
	}
}

func TestSettleInvocationRaceLost(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 50)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := openInvocation(t, s, user.ID, agent.ID, p.ID)

	_, err = s.SettleInvocation(ctx, inv.ID, "big answer", 80, 80)
	if !marketplace.IsKind(err, marketplace.KindRaceLost) {
		t.Fatalf("err = %v, want race_lost", err)
	}

	// A lost settlement must leave both the ledger and the record untouched.
	after, err := s.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if after.TokensRemaining != 50 {
		t.Fatalf("remaining = %d, want 50", after.TokensRemaining)
	}
	record, err := s.GetInvocation(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invocation: %v", err)
	}
	if record.Status != marketplace.StatusProcessing {
		t.Fatalf("status = %s, want processing", record.Status)
	}
}

// Two settlements racing on a purchase that can only cover one must end with
// exactly one completed and one race_lost, never a locked-database error and
// never a double debit.
func TestSettleInvocationConcurrentRace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)

	const rounds = 8
	if _, err := s.CreditBalance(ctx, user.ID, rounds*50); err != nil {
		t.Fatalf("credit: %v", err)
	}

	for round := 0; round < rounds; round++ {
		p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 50)
		if err != nil {
			t.Fatalf("round %d: purchase: %v", round, err)
		}
		invs := []*marketplace.Invocation{
			openInvocation(t, s, user.ID, agent.ID, p.ID),
			openInvocation(t, s, user.ID, agent.ID, p.ID),
		}

		var wg sync.WaitGroup
		errs := make([]error, len(invs))
		for i, inv := range invs {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				_, errs[i] = s.SettleInvocation(ctx, id, "out", 40, 40)
			}(i, inv.ID)
		}
		wg.Wait()

		var completed, raced int
		for i, err := range errs {
			switch {
			case err == nil:
				completed++
			case marketplace.IsKind(err, marketplace.KindRaceLost):
				raced++
			default:
				t.Fatalf("round %d: settle %d: non-race error: %v", round, i, err)
			}
		}
		if completed != 1 || raced != 1 {
			t.Fatalf("round %d: completed=%d raced=%d, want exactly one of each", round, completed, raced)
		}

		after, err := s.GetPurchase(ctx, p.ID)
		if err != nil {
			t.Fatalf("round %d: get purchase: %v", round, err)
		}
		if after.TokensRemaining != 10 {
			t.Fatalf("round %d: remaining = %d, want 10 (debited exactly once)", round, after.TokensRemaining)
		}
	}
}

func TestFailInvocation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 100)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := openInvocation(t, s, user.ID, agent.ID, p.ID)

	failed, err := s.FailInvocation(ctx, inv.ID, "partial draft", "upstream timeout")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != marketplace.StatusFailed || failed.Error != "upstream timeout" {
		t.Fatalf("failed = %+v", failed)
	}
	if failed.Output != "partial draft" {
		t.Fatalf("output = %q, want the unbilled adapter output kept for audit", failed.Output)
	}
	if failed.TokensUsed != 0 || failed.Cost != 0 {
		t.Fatalf("failed attempt was billed: %+v", failed)
	}
	after, err := s.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if after.TokensRemaining != 100 {
		t.Fatalf("remaining = %d, want 100", after.TokensRemaining)
	}

	// Failing again is a no-op; settling a failed attempt is a conflict.
	if _, err := s.FailInvocation(ctx, inv.ID, "", "again"); err != nil {
		t.Fatalf("repeat fail: %v", err)
	}
	if _, err := s.SettleInvocation(ctx, inv.ID, "out", 10, 10); !marketplace.IsKind(err, marketplace.KindConflict) {
		t.Fatalf("settle failed attempt err = %v, want conflict", err)
	}
}

func TestFailCompletedInvocationConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 100)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := openInvocation(t, s, user.ID, agent.ID, p.ID)
	if _, err := s.SettleInvocation(ctx, inv.ID, "out", 10, 10); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := s.FailInvocation(ctx, inv.ID, "", "late failure"); !marketplace.IsKind(err, marketplace.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestLatestOpenPurchase(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 300); err != nil {
		t.Fatalf("credit: %v", err)
	}

	none, err := s.LatestOpenPurchase(ctx, user.ID, agent.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no open purchase, got %+v", none)
	}

	first, err := s.CreatePurchase(ctx, user.ID, agent.ID, 100)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := s.CreatePurchase(ctx, user.ID, agent.ID, 200)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}

	open, err := s.LatestOpenPurchase(ctx, user.ID, agent.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if open.ID != second.ID {
		t.Fatalf("latest = %d, want newest %d", open.ID, second.ID)
	}

	// Drain the newest: the older open purchase becomes the entitlement.
	inv := openInvocation(t, s, user.ID, agent.ID, second.ID)
	if _, err := s.SettleInvocation(ctx, inv.ID, "out", 200, 200); err != nil {
		t.Fatalf("settle: %v", err)
	}
	open, err = s.LatestOpenPurchase(ctx, user.ID, agent.ID)
	if err != nil {
		t.Fatalf("latest after drain: %v", err)
	}
	if open == nil || open.ID != first.ID {
		t.Fatalf("latest = %+v, want purchase %d", open, first.ID)
	}
}

func TestListInvocationsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 100)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	var last int64
	for i := 0; i < 3; i++ {
		last = openInvocation(t, s, user.ID, agent.ID, p.ID).ID
	}

	list, err := s.ListInvocations(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != last {
		t.Fatalf("first = %d, want newest %d", list[0].ID, last)
	}
}

func TestDeveloperEarnings(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	dev := seedUser(t, s, "dev", true)
	agent := seedAgent(t, s, dev.ID, 1.0)
	user := seedUser(t, s, "alice", false)
	if _, err := s.CreditBalance(ctx, user.ID, 200); err != nil {
		t.Fatalf("credit: %v", err)
	}
	p, err := s.CreatePurchase(ctx, user.ID, agent.ID, 200)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	good := openInvocation(t, s, user.ID, agent.ID, p.ID)
	if _, err := s.SettleInvocation(ctx, good.ID, "out", 40, 40); err != nil {
		t.Fatalf("settle: %v", err)
	}
	bad := openInvocation(t, s, user.ID, agent.ID, p.ID)
	if _, err := s.FailInvocation(ctx, bad.ID, "", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	earnings, err := s.DeveloperEarnings(ctx, dev.ID)
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if earnings.TotalEarned != 40 {
		t.Fatalf("total = %d, want 40", earnings.TotalEarned)
	}
	if len(earnings.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(earnings.Agents))
	}
	ae := earnings.Agents[0]
	if ae.Invocations != 1 || ae.TokensUsed != 40 || ae.Earned != 40 {
		t.Fatalf("agent earnings = %+v (failed attempts must not count)", ae)
	}
}
