package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries a stable code, a client-safe message and the HTTP status
// the error maps to.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies compare equal to the sentinels.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Status: e.Status, Err: err}
}

func New(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

const (
	CodeInvalidParticipant = "INVALID_PARTICIPANT"
	CodeNotParticipant     = "NOT_PARTICIPANT"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeNotFound           = "NOT_FOUND"
	CodeTransient          = "TRANSIENT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
)

var (
	ErrInvalidParticipant = New(CodeInvalidParticipant, "cannot start a conversation with yourself", http.StatusBadRequest, nil)
	ErrNotParticipant     = New(CodeNotParticipant, "not a conversation participant", http.StatusForbidden, nil)
	ErrEmptyMessage       = New(CodeEmptyMessage, "message body is empty", http.StatusUnprocessableEntity, nil)
	ErrNotFound           = New(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrTransient          = New(CodeTransient, "service temporarily unavailable", http.StatusServiceUnavailable, nil)
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	ErrForbidden          = New(CodeForbidden, "access denied", http.StatusForbidden, nil)
	ErrRateLimited        = New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests, nil)
)

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound, nil)
}

func BadRequest(message string, err error) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest, err)
}

// Transient wraps a store or network failure. AppErrors pass through untouched.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return ErrTransient.Wrap(err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// From resolves err to an AppError, defaulting to a 500 internal error.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New("INTERNAL_ERROR", "internal error", http.StatusInternalServerError, err)
}

// ByCode returns the sentinel for a wire code, used by clients decoding
// error bodies.
func ByCode(code string) (*AppError, bool) {
	switch code {
	case CodeInvalidParticipant:
		return ErrInvalidParticipant, true
	case CodeNotParticipant:
		return ErrNotParticipant, true
	case CodeEmptyMessage:
		return ErrEmptyMessage, true
	case CodeNotFound:
		return ErrNotFound, true
	case CodeTransient:
		return ErrTransient, true
	case CodeUnauthorized:
		return ErrUnauthorized, true
	case CodeForbidden:
		return ErrForbidden, true
	case CodeRateLimited:
		return ErrRateLimited, true
	}
	return nil, false
}
