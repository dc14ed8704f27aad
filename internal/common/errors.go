package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// AppError is an error that knows how it is rendered over HTTP.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func wrapStatus(code string, status int, err error) *AppError {
	return NewAppError(code, err.Error(), status, err)
}

// BadRequest is a 400 carrying err's message.
func BadRequest(err error) *AppError { return wrapStatus("BAD_REQUEST", http.StatusBadRequest, err) }

// NotFound is a 404 carrying err's message.
func NotFound(err error) *AppError { return wrapStatus("NOT_FOUND", http.StatusNotFound, err) }

// Conflict is a 409 carrying err's message.
func Conflict(err error) *AppError { return wrapStatus("CONFLICT", http.StatusConflict, err) }

// Unprocessable is a 422 with a caller supplied code.
func Unprocessable(code string, err error) *AppError {
	return wrapStatus(code, http.StatusUnprocessableEntity, err)
}

// WriteError renders err. Anything that is not an AppError becomes an
// opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status, code, message := appErr.HTTPStatus, appErr.Code, appErr.Message
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if code == "" {
		code = "INTERNAL"
	}
	if message == "" {
		message = "internal error"
	}
	details := appErr.Details
	var syntaxErr *json.SyntaxError
	if details == nil && errors.As(appErr.Err, &syntaxErr) {
		details = map[string]any{"offset": syntaxErr.Offset}
	}
	JSONError(w, status, code, message, details)
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
