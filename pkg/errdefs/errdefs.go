package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers classify failures with errors.Is against these and
// never match on message text.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrLockBusy      = errors.New("lock busy")
	ErrDriverFailure = errors.New("driver failure")
	ErrTimeout       = errors.New("timeout")
	ErrCancelled     = errors.New("cancelled")
	ErrInternal      = errors.New("internal error")
)

// NotFound wraps a formatted message with the NotFound kind
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Conflict wraps a formatted message with the Conflict kind
func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

// Validation wraps a formatted message with the ValidationFailed kind
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// LockBusy wraps a formatted message with the LockFailure kind
func LockBusy(format string, args ...interface{}) error {
	return wrap(ErrLockBusy, format, args...)
}

// DriverFailure wraps a formatted message with the DriverFailure kind
func DriverFailure(format string, args ...interface{}) error {
	return wrap(ErrDriverFailure, format, args...)
}

// Timeout wraps a formatted message with the Timeout kind
func Timeout(format string, args ...interface{}) error {
	return wrap(ErrTimeout, format, args...)
}

// Cancelled wraps a formatted message with the Cancelled kind
func Cancelled(format string, args ...interface{}) error {
	return wrap(ErrCancelled, format, args...)
}

// Internal wraps a formatted message with the Internal kind. Internal errors
// indicate invariant violations and bubble to the worker unhandled.
func Internal(format string, args ...interface{}) error {
	return wrap(ErrInternal, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// IsNotFound reports whether err is of the NotFound kind
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is of the Conflict kind
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is of the ValidationFailed kind
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsLockBusy reports whether err is of the LockFailure kind
func IsLockBusy(err error) bool { return errors.Is(err, ErrLockBusy) }

// IsDriverFailure reports whether err is of the DriverFailure kind
func IsDriverFailure(err error) bool { return errors.Is(err, ErrDriverFailure) }

// IsTimeout reports whether err is of the Timeout kind
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsCancelled reports whether err is of the Cancelled kind
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsInternal reports whether err is of the Internal kind
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }
