package utils

import (
	"errors"
	"fmt"
)

// ErrInvalidRange marks hard input-contract violations: a malformed date
// range or a horizon outside supported bounds. Never retried; callers
// surface it as a 4xx-equivalent.
var ErrInvalidRange = errors.New("invalid range")

// ErrInsufficientData marks the rare case where no computation is possible
// at all (for example an entirely empty event feed). Sparse-but-present data
// never raises it; those paths degrade to empty or neutral outputs instead.
var ErrInsufficientData = errors.New("insufficient data")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// InvalidRange builds an AppError wrapping ErrInvalidRange.
func InvalidRange(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Err: ErrInvalidRange}
}
