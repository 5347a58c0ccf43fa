// Package taclerr defines the transport-independent error taxonomy shared by
// every core service: storage gateway, access control, management,
// scheduler, and execution worker.
package taclerr

import (
	"errors"
	"fmt"
)

// Category is one of the error classes a caller is allowed to see. User-facing
// errors are always sanitized to one of these; internal identifiers (storage
// keys, raw SQL, stack traces) never leak past the boundary.
type Category string

const (
	CategoryAuthentication   Category = "authentication"
	CategoryPermissionDenied Category = "permission_denied"
	CategoryNotFound         Category = "not_found"
	CategoryConflict         Category = "conflict"
	CategoryInvalidArgument  Category = "invalid_argument"
	CategoryCrypto           Category = "crypto"
	CategoryStorage          Category = "storage"
	CategoryScheduling       Category = "scheduling"
	CategoryExecution        Category = "execution"
	CategoryTimeout          Category = "timeout"
	CategoryInternal         Category = "internal"
)

// sentinels. Use errors.Is against these, or Classify to recover a Category
// from an arbitrary error returned by this module.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCrypto           = errors.New("crypto error")
	ErrStorage          = errors.New("storage error")
	ErrScheduling       = errors.New("scheduling error")
	ErrExecution        = errors.New("execution error")
	ErrTimeout          = errors.New("timeout")
	ErrInternal         = errors.New("internal error")
)

// Error carries a category, a human message, and an optional resource
// context used only for logging - never rendered into the wire message.
type Error struct {
	Category Category
	Message  string
	Resource string
	ID       string
	sentinel error
	cause    error
}

func (e *Error) Error() string {
	if e.Resource != "" && e.ID != "" {
		return fmt.Sprintf("%s: %s %q: %s", e.Category, e.Resource, e.ID, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.sentinel
}

func newError(cat Category, sentinel error, resource, id, message string) *Error {
	return &Error{Category: cat, Message: message, Resource: resource, ID: id, sentinel: sentinel}
}

// NotFound builds a NotFound error naming the missing resource without
// leaking the underlying storage key used to look it up.
func NotFound(resource, id string) error {
	return newError(CategoryNotFound, ErrNotFound, resource, id, "does not exist")
}

// PermissionDenied builds a total-denial error: no partial information about
// why the check failed is included, per the access-control engine's contract.
func PermissionDenied(action, resource string) error {
	return newError(CategoryPermissionDenied, ErrPermissionDenied, resource, "", fmt.Sprintf("not authorized to %s", action))
}

// Conflict builds a state-machine precondition violation, including CAS
// retry exhaustion.
func Conflict(resource, id, reason string) error {
	return newError(CategoryConflict, ErrConflict, resource, id, reason)
}

// InvalidArgument builds a schema/validation failure at an API boundary.
func InvalidArgument(field, reason string) error {
	return newError(CategoryInvalidArgument, ErrInvalidArgument, "field", field, reason)
}

// Crypto builds a key mismatch / bad IV / authentication-tag failure.
func Crypto(reason string) error {
	return newError(CategoryCrypto, ErrCrypto, "", "", reason)
}

// Storage wraps an underlying key-value store failure without exposing it
// verbatim to callers outside the storage gateway.
func Storage(op string, cause error) error {
	e := newError(CategoryStorage, ErrStorage, "", "", fmt.Sprintf("storage operation %q failed", op))
	e.cause = cause
	return e
}

// Scheduling builds a queue-empty / unknown-worker / stale-assignment error.
func Scheduling(reason string) error {
	return newError(CategoryScheduling, ErrScheduling, "", "", reason)
}

// Execution wraps an executor's own error string as opaque detail.
func Execution(detail string) error {
	return newError(CategoryExecution, ErrExecution, "", "", detail)
}

// Timeout builds a worker-timeout or RPC-deadline-exceeded error.
func Timeout(reason string) error {
	return newError(CategoryTimeout, ErrTimeout, "", "", reason)
}

// Internal wraps any error not otherwise classified. Callers should log the
// cause with a backtrace and surface only this sanitized wrapper.
func Internal(cause error) error {
	e := newError(CategoryInternal, ErrInternal, "", "", "an internal error occurred")
	e.cause = cause
	return e
}

// Authentication builds a missing/invalid token error.
func Authentication(reason string) error {
	return newError(CategoryAuthentication, ErrAuthentication, "", "", reason)
}

// Classify recovers the Category of any error produced by this package,
// defaulting to CategoryInternal for errors from elsewhere so that callers
// never leak an unclassified error's raw text to a client.
func Classify(err error) Category {
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	switch {
	case errors.Is(err, ErrAuthentication):
		return CategoryAuthentication
	case errors.Is(err, ErrPermissionDenied):
		return CategoryPermissionDenied
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrConflict):
		return CategoryConflict
	case errors.Is(err, ErrInvalidArgument):
		return CategoryInvalidArgument
	case errors.Is(err, ErrCrypto):
		return CategoryCrypto
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	case errors.Is(err, ErrScheduling):
		return CategoryScheduling
	case errors.Is(err, ErrExecution):
		return CategoryExecution
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}

// IsRetryable reports whether local retry-with-backoff is appropriate, per
// the propagation policy: Conflict and Timeout on internal calls are
// recoverable; everything else is surfaced verbatim.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case CategoryConflict, CategoryTimeout:
		return true
	default:
		return false
	}
}
