// Package apperr defines the error taxonomy shared by every domain package
// and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Kind categorises an error by how the caller should react to it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Error codes surfaced to clients.
const (
	CodeMissingField       = "MISSING_FIELD"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeEmptyCart          = "EMPTY_CART"
	CodeSlotTaken          = "SLOT_TAKEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeRoomFull           = "ROOM_FULL"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeDuplicate          = "DUPLICATE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeForbidden          = "FORBIDDEN"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind                   `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail returns the error with key set in its details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, format, args...)
}

// MissingField reports an absent required field.
func MissingField(field string) *Error {
	return Validation(CodeMissingField, "%s is required", field).WithDetail("field", field)
}

func NotFound(what, id string) *Error {
	return newError(KindNotFound, CodeNotFound, "%s not found", what).WithDetail("id", id)
}

func Conflict(code, format string, args ...interface{}) *Error {
	return newError(KindConflict, code, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newError(KindForbidden, CodeForbidden, format, args...)
}

func Unauthorized(code, format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, code, format, args...)
}

func Unavailable(cause error, format string, args ...interface{}) *Error {
	e := newError(KindUnavailable, CodeUnavailable, format, args...)
	e.Cause = cause
	return e
}

func Internal(cause error, format string, args ...interface{}) *Error {
	e := newError(KindInternal, CodeInternal, format, args...)
	e.Cause = cause
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// StatusCode maps a kind to its HTTP status.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error *Error `json:"error"`
}

// HTTPErrorHandler renders application errors as {"error": {...}} and lets
// echo.HTTPError through with the same envelope.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var body *Error
		status := http.StatusInternalServerError

		var ae *Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			body = ae
			status = StatusCode(ae.Kind)
		case errors.As(err, &he):
			status = he.Code
			body = &Error{Code: http.StatusText(he.Code), Message: fmt.Sprint(he.Message)}
		default:
			body = &Error{Code: CodeInternal, Message: "internal server error"}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorBody{Error: body})
	}
}
