package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/api/v1/agents", 20*time.Millisecond)
	c.RecordRequest("/api/v1/agents", 30*time.Millisecond)
	c.RecordError("/api/v1/agents")
	c.RecordInvocation("code_reviewer", 100*time.Millisecond, nil)
	c.RecordInvocation("code_reviewer", 50*time.Millisecond, errors.New("boom"))
	c.RecordSettlement("code_reviewer", 45, 45)
	c.RecordSettlementRace()
	c.RecordPurchase(1000)
	c.RecordTopup(500)

	snap := c.GetSnapshot()
	if snap.TotalRequests["/api/v1/agents"] != 2 {
		t.Fatalf("requests = %d", snap.TotalRequests["/api/v1/agents"])
	}
	if snap.TotalRequestsDur["/api/v1/agents"] != 50 {
		t.Fatalf("duration = %d", snap.TotalRequestsDur["/api/v1/agents"])
	}
	if snap.RequestErrors["/api/v1/agents"] != 1 {
		t.Fatalf("errors = %d", snap.RequestErrors["/api/v1/agents"])
	}
	if snap.Invocations["code_reviewer"] != 2 || snap.InvocationErrors["code_reviewer"] != 1 {
		t.Fatalf("invocations = %+v errors = %+v", snap.Invocations, snap.InvocationErrors)
	}
	if snap.TokensSettled["code_reviewer"] != 45 || snap.TokensCharged["code_reviewer"] != 45 {
		t.Fatalf("settled = %+v charged = %+v", snap.TokensSettled, snap.TokensCharged)
	}
	if snap.SettlementRaces != 1 || snap.Purchases != 1 || snap.PurchasedTokens != 1000 {
		t.Fatalf("billing counters = %+v", snap)
	}
	if snap.Topups != 1 || snap.TopupTokens != 500 {
		t.Fatalf("topup counters = %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/healthz", time.Millisecond)
	snap := c.GetSnapshot()
	snap.TotalRequests["/healthz"] = 99

	if c.GetSnapshot().TotalRequests["/healthz"] != 1 {
		t.Fatalf("snapshot mutation leaked into the collector")
	}
}

func TestFormatPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordInvocation("resume_reviewer", 10*time.Millisecond, nil)
	c.RecordSettlement("resume_reviewer", 120, 1)
	c.RecordPurchase(500)

	out := FormatPrometheus(c.GetSnapshot())
	for _, want := range []string{
		"# TYPE agentmart_uptime_seconds gauge",
		`agentmart_invocations_total{agent="resume_reviewer"} 1`,
		`agentmart_tokens_settled_total{agent="resume_reviewer"} 120`,
		`agentmart_tokens_charged_total{agent="resume_reviewer"} 1`,
		"agentmart_purchases_total 1",
		"agentmart_purchased_tokens_total 500",
		"agentmart_settlement_races_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
