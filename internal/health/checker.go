package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is implemented by stores that can verify their backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component is the result of one component check.
type Component struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Report is the overall health of the marketplace.
type Report struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Config holds checker configuration.
type Config struct {
	Store Pinger
	// ProviderBaseURL is probed for reachability; a down provider degrades
	// but never fails overall health, since the ledger keeps working.
	ProviderBaseURL string

	StoreTimeout    time.Duration
	HTTPTimeout     time.Duration
	MaxStoreLatency time.Duration
}

// Checker probes the store and the completion provider.
type Checker struct {
	store           Pinger
	providerBaseURL string

	storeTimeout    time.Duration
	httpTimeout     time.Duration
	maxStoreLatency time.Duration

	mu   sync.RWMutex
	last []Component
}

// New creates a checker with default timeouts filled in.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxStoreLatency == 0 {
		cfg.MaxStoreLatency = 100 * time.Millisecond
	}
	return &Checker{
		store:           cfg.Store,
		providerBaseURL: cfg.ProviderBaseURL,
		storeTimeout:    cfg.StoreTimeout,
		httpTimeout:     cfg.HTTPTimeout,
		maxStoreLatency: cfg.MaxStoreLatency,
	}
}

// Check runs all component checks concurrently and returns the overall report.
func (c *Checker) Check(ctx context.Context) Report {
	var wg sync.WaitGroup
	results := make(chan Component, 2)

	if c.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkStore(ctx)
		}()
	}
	if c.providerBaseURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkProvider(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, 2)
	for comp := range results {
		components = append(components, comp)
	}

	c.mu.Lock()
	c.last = components
	c.mu.Unlock()

	return overall(components)
}

func (c *Checker) checkStore(ctx context.Context) Component {
	comp := Component{Name: "store", Type: "database", Timestamp: time.Now()}

	pingCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.Ping(pingCtx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "store unreachable"
		return comp
	}
	if comp.Latency > c.maxStoreLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("high latency: %v", comp.Latency)
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = "connected"
	return comp
}

func (c *Checker) checkProvider(ctx context.Context) Component {
	comp := Component{Name: "completion_provider", Type: "http", Timestamp: time.Now()}

	client := &http.Client{Timeout: c.httpTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.providerBaseURL, nil)
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		return comp
	}

	start := time.Now()
	resp, err := client.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "provider unreachable"
		return comp
	}
	defer resp.Body.Close()

	// Any response counts as reachable; auth errors still mean the service
	// is up.
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode)
	return comp
}

// LastReport returns the report from the most recent Check.
func (c *Checker) LastReport() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.last) == 0 {
		return Report{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return overall(c.last)
}

func overall(components []Component) Report {
	status := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if comp.Type == "database" {
				// A dead store means nothing can settle.
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return Report{Status: status, Timestamp: time.Now(), Components: components}
}
