package metrics

import (
	"sync"
	"time"
)

// Collector tracks marketplace activity counters for the /metrics endpoint.
// Manual tracking keeps the dependency surface small; swap in
// prometheus/client_golang if histogram support is ever needed.
type Collector struct {
	mu sync.RWMutex

	// HTTP metrics, keyed by route pattern.
	totalRequests    map[string]int64
	totalRequestsDur map[string]int64 // cumulative duration in ms
	requestErrors    map[string]int64

	// Invocation metrics, keyed by agent type.
	invocations       map[string]int64
	invocationErrors  map[string]int64
	invocationLatency map[string]int64 // cumulative adapter latency in ms
	tokensSettled     map[string]int64 // billed tokens per agent type
	tokensCharged     map[string]int64 // platform tokens charged per agent type

	// Billing metrics.
	purchases       int64
	purchasedTokens int64
	topups          int64
	topupTokens     int64
	settlementRaces int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:     make(map[string]int64),
		totalRequestsDur:  make(map[string]int64),
		requestErrors:     make(map[string]int64),
		invocations:       make(map[string]int64),
		invocationErrors:  make(map[string]int64),
		invocationLatency: make(map[string]int64),
		tokensSettled:     make(map[string]int64),
		tokensCharged:     make(map[string]int64),
		startTime:         time.Now(),
	}
}

// RecordRequest records a completed HTTP request for a route.
func (c *Collector) RecordRequest(route string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests[route]++
	c.totalRequestsDur[route] += duration.Milliseconds()
}

// RecordError records an error response for a route.
func (c *Collector) RecordError(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestErrors[route]++
}

// RecordInvocation records an agent invocation attempt and its outcome.
func (c *Collector) RecordInvocation(agentType string, duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invocations[agentType]++
	c.invocationLatency[agentType] += duration.Milliseconds()
	if err != nil {
		c.invocationErrors[agentType]++
	}
}

// RecordSettlement records billed usage for a completed invocation.
func (c *Collector) RecordSettlement(agentType string, tokensUsed, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokensSettled[agentType] += tokensUsed
	c.tokensCharged[agentType] += cost
}

// RecordSettlementRace records a settlement lost to a concurrent debit.
func (c *Collector) RecordSettlementRace() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settlementRaces++
}

// RecordPurchase records a token package purchase.
func (c *Collector) RecordPurchase(tokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purchases++
	c.purchasedTokens += tokens
}

// RecordTopup records a balance top-up.
func (c *Collector) RecordTopup(tokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topups++
	c.topupTokens += tokens
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime            int64
	TotalRequests     map[string]int64
	TotalRequestsDur  map[string]int64
	RequestErrors     map[string]int64
	Invocations       map[string]int64
	InvocationErrors  map[string]int64
	InvocationLatency map[string]int64
	TokensSettled     map[string]int64
	TokensCharged     map[string]int64
	Purchases         int64
	PurchasedTokens   int64
	Topups            int64
	TopupTokens       int64
	SettlementRaces   int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:            int64(time.Since(c.startTime).Seconds()),
		TotalRequests:     copyMap(c.totalRequests),
		TotalRequestsDur:  copyMap(c.totalRequestsDur),
		RequestErrors:     copyMap(c.requestErrors),
		Invocations:       copyMap(c.invocations),
		InvocationErrors:  copyMap(c.invocationErrors),
		InvocationLatency: copyMap(c.invocationLatency),
		TokensSettled:     copyMap(c.tokensSettled),
		TokensCharged:     copyMap(c.tokensCharged),
		Purchases:         c.purchases,
		PurchasedTokens:   c.purchasedTokens,
		Topups:            c.topups,
		TopupTokens:       c.topupTokens,
		SettlementRaces:   c.settlementRaces,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
