package agents

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// Registry maps stable agent type identifiers to implementations. Catalog
// entries carry the type at creation time; display names never participate
// in dispatch.
type Registry struct {
	mu       sync.RWMutex
	invokers map[marketplace.AgentType]marketplace.Invoker
}

var _ marketplace.InvokerRegistry = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[marketplace.AgentType]marketplace.Invoker)}
}

// Register adds an implementation for the agent type.
func (r *Registry) Register(agentType marketplace.AgentType, invoker marketplace.Invoker) error {
	if agentType == "" {
		return errors.New("agents: agent type cannot be empty")
	}
	if invoker == nil {
		return errors.New("agents: invoker cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.invokers[agentType]; exists {
		return fmt.Errorf("agents: type %q already registered", agentType)
	}
	r.invokers[agentType] = invoker
	return nil
}

// Lookup resolves the implementation for the agent type.
func (r *Registry) Lookup(agentType marketplace.AgentType) (marketplace.Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	invoker, ok := r.invokers[agentType]
	return invoker, ok
}

// ListTypes returns the registered agent types in stable order.
func (r *Registry) ListTypes() []marketplace.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]marketplace.AgentType, 0, len(r.invokers))
	for t := range r.invokers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// NewDefaultRegistry registers the full built-in agent set over the client.
func NewDefaultRegistry(client llm.ChatClient, model string) *Registry {
	r := NewRegistry()
	_ = r.Register(marketplace.AgentTypeResumeReviewer, NewResumeReviewer(client, model))
	_ = r.Register(marketplace.AgentTypeCodeReviewer, NewCodeReviewer(client, model))
	_ = r.Register(marketplace.AgentTypeInterviewPrep, NewInterviewPrep(client, model))
	_ = r.Register(marketplace.AgentTypeWritingAssistant, NewWritingAssistant(client, model))
	_ = r.Register(marketplace.AgentTypeTroubleshooter, NewTroubleshooter(client, model))
	return r
}
