package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy from the session engine's design: a
// small set of kinds, not a type per failure.
type ErrorKind string

const (
	// KindConfig marks an invalid or missing session configuration. Fatal at Start.
	KindConfig ErrorKind = "config"
	// KindValidation marks a symbol add that failed its ProvisioningRequirements check.
	KindValidation ErrorKind = "validation"
	// KindRepository marks a BarRepository failure (unavailable, malformed data).
	KindRepository ErrorKind = "repository"
	// KindOverrun marks a clock-driven downstream that missed its ready deadline.
	KindOverrun ErrorKind = "overrun"
	// KindClock marks an attempt to read the simulated clock before backtest init.
	KindClock ErrorKind = "clock"
	// KindLifecycle marks an illegal session state transition.
	KindLifecycle ErrorKind = "lifecycle"
)

// SessionError wraps an underlying error with a taxonomy Kind and the
// operation that produced it, so callers can branch on Kind without
// parsing messages.
type SessionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Is supports errors.Is comparisons against other *SessionError values
// sharing the same Kind.
func (e *SessionError) Is(target error) bool {
	var other *SessionError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// NewError constructs a SessionError.
func NewError(kind ErrorKind, op string, err error) *SessionError {
	return &SessionError{Kind: kind, Op: op, Err: err}
}

// Sentinel errors used for simple validation failures, following the
// package-level var pattern the teacher uses for its validation errors.
var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidOHLC      = errors.New("invalid bar: low must be <= open, close <= high")
	ErrInvalidVolume    = errors.New("invalid bar: volume must be >= 0")
	ErrInvalidTimestamp = errors.New("invalid or zero timestamp")
	ErrInvalidInterval  = errors.New("invalid interval string")
	ErrDuplicateBar     = errors.New("bar already exists at this timestamp")
	ErrOutOfOrder       = errors.New("bar timestamp precedes the last bar in the series")
	ErrSymbolNotFound   = errors.New("symbol not registered in session data")
	ErrIntervalNotFound = errors.New("interval not registered for symbol")
	ErrOverrun          = errors.New("downstream subscriber missed its ready deadline")
	ErrClockNotInit     = errors.New("simulated clock read before backtest initialization")
	ErrLifecycle        = errors.New("illegal session lifecycle transition")
	ErrAlreadyFull      = errors.New("symbol already meets full session configuration requirements")
	ErrAlreadyAdhoc     = errors.New("adhoc indicator already present for symbol")
)
