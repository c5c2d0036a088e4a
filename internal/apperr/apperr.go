// Package apperr defines the error taxonomy shared by the matching engine, the
// enrollment service and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code returned to clients.
type Code string

const (
	CodeValidation           Code = "validation_failed"
	CodeDuplicateEmbedding   Code = "duplicate_embedding"
	CodeInvalidEmbedding     Code = "invalid_embedding"
	CodeAuthentication       Code = "authentication_failed"
	CodeIdentityMismatch     Code = "identity_mismatch"
	CodeConflict             Code = "conflict"
	CodeNotFound             Code = "not_found"
	CodeNoFace               Code = "no_face"
	CodeExtractorUnavailable Code = "extractor_unavailable"
	CodeInternal             Code = "internal"
)

// Error is an application error carrying a Code and a user-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code, so callers can
// write errors.Is(err, apperr.ErrDuplicateEmbedding).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrDuplicateEmbedding   = &Error{Code: CodeDuplicateEmbedding, Message: "embedding matches another identity"}
	ErrInvalidEmbedding     = &Error{Code: CodeInvalidEmbedding, Message: "invalid embedding"}
	ErrAuthentication       = &Error{Code: CodeAuthentication, Message: "invalid credentials"}
	ErrIdentityMismatch     = &Error{Code: CodeIdentityMismatch, Message: "face does not match logged-in user"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "conflict"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNoFace               = &Error{Code: CodeNoFace, Message: "no face detected"}
	ErrExtractorUnavailable = &Error{Code: CodeExtractorUnavailable, Message: "face extractor unavailable"}
)

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation is shorthand for New(CodeValidation, message).
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// From converts any error into an *Error. Unknown errors become CodeInternal
// with a generic message so internals are never leaked to clients.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf returns the Code of err, or CodeInternal.
func CodeOf(err error) Code {
	return From(err).Code
}

// HTTPStatus maps a code to the HTTP status used by the web layer.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeDuplicateEmbedding, CodeConflict:
		return http.StatusConflict
	case CodeInvalidEmbedding, CodeNoFace:
		return http.StatusUnprocessableEntity
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeIdentityMismatch:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExtractorUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
