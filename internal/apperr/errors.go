// Package apperr defines the typed errors returned by the drop engine.
// Each error carries the HTTP status it maps to, a stable machine code and
// a human readable message. Sentinels are immutable: Msg returns a copy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidDropType = "INVALID_DROP_TYPE"
	CodeDuplicateEntry  = "DUPLICATE_ENTRY"
	CodeInvalidState    = "INVALID_STATE"
	CodeValidation      = "VALIDATION_ERROR"
	CodeStorage         = "STORAGE_ERROR"
)

var (
	// ErrNotFound is returned when a drop or entry does not exist.
	ErrNotFound = New(http.StatusNotFound, CodeNotFound, "resource not found")

	// ErrInvalidDropType is returned when an operation requires a DRAW drop.
	ErrInvalidDropType = New(http.StatusBadRequest, CodeInvalidDropType, "operation requires a DRAW drop")

	// ErrDuplicateEntry is returned when the user already entered the draw
	// for this product.
	ErrDuplicateEntry = New(http.StatusConflict, CodeDuplicateEntry, "entry already exists for this product")

	// ErrInvalidState is returned when the drop or entry is not in a state
	// that allows the operation.
	ErrInvalidState = New(http.StatusConflict, CodeInvalidState, "operation not allowed in current state")

	// ErrValidation is returned for malformed input.
	ErrValidation = New(http.StatusBadRequest, CodeValidation, "invalid input")

	// ErrStorage wraps failures of the backing store.
	ErrStorage = New(http.StatusInternalServerError, CodeStorage, "storage failure")
)

type Extras map[string]interface{}

type Error struct {
	StatusCode int
	Code       string
	Message    string
	Extras     *Extras

	cause error
}

func New(statusCode int, code string, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

func (e Error) Msg(format string, parts ...interface{}) *Error {
	e.Message = fmt.Sprintf(format, parts...)
	return &e
}

func (e Error) WithExtras(extras Extras) *Error {
	e.Extras = &extras
	return &e
}

func (e Error) withCause(err error) *Error {
	e.cause = err
	return &e
}

// Storage wraps err as a STORAGE_ERROR. The cause stays reachable through
// errors.Is / errors.As.
func Storage(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrStorage.withCause(err)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so copies produced by Msg still
// satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return http.StatusInternalServerError
}
