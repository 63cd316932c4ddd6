package engine

import (
	"errors"
	"fmt"
)

// StoreError reports a violation of the store's dispatch discipline.
// These are programmer errors and are always returned to the caller.
type StoreError struct {
	// Code identifies the error category.
	Code StoreErrorCode

	// Message is a human-readable description.
	Message string

	// ActionType is the offending action type, if any.
	ActionType string

	// Err is the underlying cause, if any.
	Err error
}

// StoreErrorCode categorizes store errors.
type StoreErrorCode string

const (
	// ErrCodeNotStarted indicates an operation that needs a started store.
	ErrCodeNotStarted StoreErrorCode = "NOT_STARTED"

	// ErrCodeAlreadyStarted indicates Start on a started store.
	ErrCodeAlreadyStarted StoreErrorCode = "ALREADY_STARTED"

	// ErrCodeStopped indicates use of a stopped store. Stopped stores
	// cannot be restarted.
	ErrCodeStopped StoreErrorCode = "STOPPED"

	// ErrCodeReservedAction indicates a caller dispatched a lifecycle type.
	ErrCodeReservedAction StoreErrorCode = "RESERVED_ACTION"

	// ErrCodeStarted indicates Load or Dump on a started store.
	ErrCodeStarted StoreErrorCode = "STARTED"

	// ErrCodeInvalidAction indicates an action type that cannot be dispatched.
	ErrCodeInvalidAction StoreErrorCode = "INVALID_ACTION"
)

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ActionType != "" {
		msg = fmt.Sprintf("%s (type=%s)", msg, e.ActionType)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a StoreError with the given code.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error, code StoreErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotStartedError reports whether err rejects an operation on a store
// that was never started or was stopped.
func IsNotStartedError(err error) bool {
	return IsStoreError(err, ErrCodeNotStarted) || IsStoreError(err, ErrCodeStopped)
}

// IsReservedActionError reports whether err rejects a lifecycle type.
func IsReservedActionError(err error) bool {
	return IsStoreError(err, ErrCodeReservedAction)
}

func errNotStarted() *StoreError {
	return &StoreError{Code: ErrCodeNotStarted, Message: "Store is not started"}
}

func errStopped() *StoreError {
	return &StoreError{Code: ErrCodeStopped, Message: "Store is stopped and cannot be restarted"}
}
