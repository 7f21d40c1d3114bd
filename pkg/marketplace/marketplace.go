// Package marketplace re-exports the marketplace core so embedders can run
// the billing engine in-process without importing internal packages.
package marketplace

import (
	"time"

	internal "github.com/agentmart/agentmart/internal/marketplace"
	storesqlite "github.com/agentmart/agentmart/internal/store/sqlite"
)

type (
	User       = internal.User
	Agent      = internal.Agent
	AgentType  = internal.AgentType
	Purchase   = internal.Purchase
	Invocation = internal.Invocation
	Payload    = internal.Payload
	Earnings   = internal.Earnings

	Store           = internal.Store
	Invoker         = internal.Invoker
	InvokerRegistry = internal.InvokerRegistry
	InvokeResult    = internal.InvokeResult

	Entitlements = internal.Entitlements
	Coordinator  = internal.Coordinator

	Kind  = internal.Kind
	Error = internal.Error
)

const (
	KindNotFound        = internal.KindNotFound
	KindPaymentRequired = internal.KindPaymentRequired
	KindAgentError      = internal.KindAgentError
	KindRaceLost        = internal.KindRaceLost
	KindConflict        = internal.KindConflict
	KindInvalid         = internal.KindInvalid
	KindInternal        = internal.KindInternal
)

// NewEntitlements delegates to the internal constructor.
func NewEntitlements(store Store) *Entitlements {
	return internal.NewEntitlements(store)
}

// NewCoordinator delegates to the internal constructor.
func NewCoordinator(store Store, ent *Entitlements, registry InvokerRegistry, callTimeout time.Duration) *Coordinator {
	return internal.NewCoordinator(store, ent, registry, callTimeout)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return internal.IsKind(err, kind)
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	return internal.KindOf(err)
}

// OpenSQLite opens the embedded SQLite-backed store.
func OpenSQLite(path string) (Store, error) {
	return storesqlite.New(path)
}
