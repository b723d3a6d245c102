package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeDuplicate     Code = "DUPLICATE_EVENT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the per-code transport behavior: status code, whether a
// caller should retry, the message safe to show externally, and whether
// structured details may leave the process.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor resolves a code's transport behavior. Unknown codes map to
// internal so a missing table entry can never leak details.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"}
	case CodeStateConflict:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true}
	case CodeDuplicate:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "event already processed", DetailsAllowed: true}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}

// Error is a coded error with an optional cause chain and optional
// structured details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured context emitted only when the code's
// metadata allows it.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the typed error from anywhere in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
