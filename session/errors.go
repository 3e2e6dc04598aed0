package session

import (
	"errors"
	"fmt"

	"github.com/sabledb/client-go/buffer"
)

// ErrorCode classifies session-layer failures (spec.md §7).
type ErrorCode string

const (
	ErrCodeProgrammerError    ErrorCode = "programmer_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeIllegalState       ErrorCode = "illegal_state"
	ErrCodeTimeout            ErrorCode = "timeout"
)

// Error is the canonical error wrapper for session operations, grounded on
// the teacher's connection.Error.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error

	// Notification is set on ErrCodeServiceUnavailable: the throttle
	// signal callers can await before retrying apply (spec.md §4.6).
	Notification *buffer.Notification
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCode reports whether err (or any wrapped error) is a session Error with
// the given code.
func IsCode(err error, code ErrorCode) bool {
	var sessErr *Error
	return errors.As(err, &sessErr) && sessErr.Code == code
}

func programmerError(op, msg string) error {
	return &Error{Code: ErrCodeProgrammerError, Op: op, Err: errors.New(msg)}
}

func illegalState(op, msg string) error {
	return &Error{Code: ErrCodeIllegalState, Op: op, Err: errors.New(msg)}
}

func serviceUnavailable(op, msg string, notif *buffer.Notification) error {
	return &Error{Code: ErrCodeServiceUnavailable, Op: op, Err: errors.New(msg), Notification: notif}
}

// Sentinel programmer errors returned by SessionBuilder.Build's eager
// validation (spec.md §7 "fail the caller immediately; no state change").
var (
	ErrNilRouter           = programmerError("Build", "router must not be nil")
	ErrNilTransport        = programmerError("Build", "transport must not be nil")
	ErrInvalidBufferSpace  = programmerError("Build", "mutation buffer space must be positive")
	ErrInvalidLowWatermark = programmerError("Build", "mutation buffer low watermark percentage must be in [0,1]")
)
