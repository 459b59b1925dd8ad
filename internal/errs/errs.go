// Package errs implements the error taxonomy of spec §7 as tagged sentinel
// errors, in the style of other_examples' newthinker-atlas broker package:
// exported sentinels plus a Kind classifier, not exception-driven control flow.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the behavioral category of an error, independent of which component
// raised it. The HTTP layer (a collaborator, out of scope here) maps Kind to a
// status code; within the core, Kind decides whether an operation retries.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindDuplicate         Kind = "DUPLICATE"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindBackpressure      Kind = "BACKPRESSURE"
	KindQueueFull         Kind = "QUEUE_FULL"
	KindTransient         Kind = "TRANSIENT"
	KindBrokerReject      Kind = "BROKER_REJECT"
	KindLockTimeout       Kind = "LOCK_TIMEOUT"
	KindTimeout           Kind = "TIMEOUT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindNotFound          Kind = "NOT_FOUND"
	KindDBSyncStalled     Kind = "DB_SYNC_STALLED"
	KindFatal             Kind = "FATAL"
)

// Error wraps an underlying cause with a Kind and, where relevant, the order
// id and/or scope the error concerns.
type Error struct {
	Kind    Kind
	Scope   string // e.g. "broker.submit", "sql", "redis", "lock"
	OrderID string
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s[%s order=%s]: %s", e.Kind, e.Scope, e.OrderID, e.Msg)
	}
	if e.Scope != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Scope, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged error.
func New(kind Kind, scope, msg string) *Error {
	return &Error{Kind: kind, Scope: scope, Msg: msg}
}

// Wrap tags an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, scope string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Scope: scope, Msg: msg, Cause: cause}
}

// WithOrder attaches an order id for richer logging/propagation.
func (e *Error) WithOrder(orderID string) *Error {
	cp := *e
	cp.OrderID = orderID
	return &cp
}

// KindOf extracts the Kind from err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the component that owns the operation should
// retry internally (spec §7 propagation rule: retries happen only within the
// owning component).
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindLockTimeout, KindTimeout:
		return true
	default:
		return false
	}
}

// Sentinel, scope-free errors for simple not-found / invalid-transition cases
// where no extra context is needed.
var (
	ErrNotFound          = New(KindNotFound, "", "order not found")
	ErrInvalidTransition = New(KindInvalidTransition, "", "invalid state transition")
	ErrLockTimeout       = New(KindLockTimeout, "", "lock acquisition timed out")
)
