// Package errors is the typed error model shared by every service. Each error
// carries a Code; the code decides the HTTP status, whether the caller may
// retry, and whether the message and details are safe to show a client.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeIntegrity     Code = "LEDGER_INTEGRITY_VIOLATION"
)

// Kind groups codes by how callers react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindBusinessRule Kind = "business_rule"
	KindInfra        Kind = "infra"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ShowMessage exposes the error's own message instead of PublicMessage.
	ShowMessage bool
	Kind        Kind
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", true, true, KindValidation},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false, true, KindValidation},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false, true, KindBusinessRule},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false, true, KindBusinessRule},
	CodeConflict:      {http.StatusConflict, true, "conflict detected", false, true, KindBusinessRule},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true, true, KindBusinessRule},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true, true, KindValidation},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false, true, KindInfra},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false, false, KindInfra},
	CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true, false, KindInfra},
	CodeIntegrity:     {http.StatusInternalServerError, false, "ledger integrity violation", false, false, KindInfra},
}

// MetadataFor returns the table entry for code; unknown codes read as internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func Wrapf(code Code, err error, format string, args ...any) *Error {
	return Wrap(code, err, fmt.Sprintf(format, args...))
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

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
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

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf is the code of err, with untyped errors reading as internal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}

// Retryable reports whether the caller may try the same operation again.
func Retryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
