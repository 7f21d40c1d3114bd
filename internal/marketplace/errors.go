package marketplace

import (
	"errors"
	"fmt"
)

// Kind discriminates marketplace failures so callers can tell "go buy more
// tokens" from "try again" without parsing messages.
type Kind string

const (
	// KindNotFound covers missing or deactivated agents and missing records.
	KindNotFound Kind = "not_found"
	// KindPaymentRequired covers absent entitlements and insufficient
	// balances, both on the user balance and on a purchase.
	KindPaymentRequired Kind = "payment_required"
	// KindAgentError covers upstream provider failures. Never billed.
	KindAgentError Kind = "agent_error"
	// KindRaceLost means a concurrent invocation consumed the remaining
	// purchase balance between the pre-check and settlement. Retryable.
	KindRaceLost Kind = "race_lost"
	// KindConflict covers duplicate records and settlement replays against
	// a terminal invocation in the wrong state.
	KindConflict Kind = "conflict"
	// KindInvalid covers malformed caller input.
	KindInvalid Kind = "invalid"
	// KindInternal covers store failures and invariant violations.
	KindInternal Kind = "internal"
)

// Error is the discriminated error type used across the billing core.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a marketplace error with the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a kind to an underlying error.
func WrapErr(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal for errors
// that did not originate in the marketplace core.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
