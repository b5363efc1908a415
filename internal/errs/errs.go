// Package errs implements the error taxonomy: InputInvalid,
// LimitBreach, Transient, NonRetryable, EmergencyHalted and Fatal. Every
// loop driver classifies its own errors with Classify and updates the store
// accordingly; nothing re-throws across a loop boundary.
package errs

import "errors"

// Sentinel category errors. Wrap a concrete cause with one of these via
// fmt.Errorf("...: %w", Transient) (or use the New* helpers) so errors.Is
// still recognizes the category after wrapping.
var (
	// InputInvalid is rejected at the API boundary; no state change occurs.
	InputInvalid = errors.New("input invalid")
	// LimitBreach is expected: it generates an alert and possibly an action.
	LimitBreach = errors.New("limit breach")
	// Transient is retried with backoff (RPC timeouts, nonce conflicts, store deadlocks).
	Transient = errors.New("transient error")
	// NonRetryable fails the operation outright; the plan/job terminalizes as failed.
	NonRetryable = errors.New("non-retryable error")
	// EmergencyHalted is returned to write-side callers while the emergency flag is set.
	EmergencyHalted = errors.New("emergency halted")
	// Fatal is surfaced to the Coordinator; the owning loop pauses and a
	// system-severity alert is raised.
	Fatal = errors.New("fatal error")
)

// Category is one of the taxonomy values above.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryInputInvalid
	CategoryLimitBreach
	CategoryTransient
	CategoryNonRetryable
	CategoryEmergencyHalted
	CategoryFatal
)

// Classify maps err to its taxonomy category by unwrapping against the
// sentinel values. Errors not wrapping any sentinel classify as Unknown,
// which callers should treat the same as NonRetryable.
func Classify(err error) Category {
	switch {
	case err == nil:
 return CategoryUnknown
	case errors.Is(err, InputInvalid):
 return CategoryInputInvalid
	case errors.Is(err, LimitBreach):
 return CategoryLimitBreach
	case errors.Is(err, Transient):
 return CategoryTransient
	case errors.Is(err, NonRetryable):
 return CategoryNonRetryable
	case errors.Is(err, EmergencyHalted):
 return CategoryEmergencyHalted
	case errors.Is(err, Fatal):
 return CategoryFatal
	default:
 return CategoryUnknown
	}
}

// IsRetryable reports whether err's category should be retried with backoff.
func IsRetryable(err error) bool {
	return Classify(err) == CategoryTransient
}
