package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error classifies an adapter failure as transient (retryable) or permanent
// (broker-side rejection, never retried).
type Error struct {
	Transient bool
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("broker: %s: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("broker: %s: %s", kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable failure (timeout, 5xx,
// connection reset).
func NewTransientError(reason string, err error) *Error {
	return &Error{Transient: true, Reason: reason, Err: err}
}

// NewPermanentError wraps err as a non-retryable failure (validation,
// broker-side rejection).
func NewPermanentError(reason string, err error) *Error {
	return &Error{Transient: false, Reason: reason, Err: err}
}

// IsTransient reports whether err should be retried. Classified broker
// errors carry their own verdict; bare transport errors (net timeouts,
// context deadline) count as transient, everything else as permanent.
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// Reason extracts the broker-supplied reason from a classified error, or the
// plain error text otherwise.
func Reason(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
