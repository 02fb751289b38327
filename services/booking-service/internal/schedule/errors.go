package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate means the requested day is outside the bookable window
	// (in the past or beyond the policy's max advance).
	ErrInvalidDate = errors.New("date outside bookable window")

	// ErrNotFound means a referenced barber or service does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means an underlying source could not be read. Callers must
	// treat this as "cannot determine availability", never as "available".
	ErrUnavailable = errors.New("availability source unavailable")
)

// WrapUnavailable wraps a source failure so callers fail closed: the sentinel
// survives errors.Is while the cause stays in the message.
func WrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
