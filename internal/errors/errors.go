// Package errors defines the error taxonomy used at the data-access
// boundary. Backend error shapes (PostgREST, GoTrue, storage) are
// translated into a ServiceError with a stable code as soon as they enter
// the process, so upper layers never inspect raw backend payloads.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies an error kind.
type Code string

const (
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeNotFound       Code = "not_found"
	CodeValidation     Code = "validation_failed"
	CodeDuplicateDeal  Code = "duplicate_deal"
	CodeLimitExceeded  Code = "product_limit_exceeded"
	CodeConflict       Code = "conflict"
	CodeRateLimited    Code = "rate_limit_exceeded"
	CodeInvalidToken   Code = "invalid_token"
	CodeUnavailable    Code = "backend_unavailable"
	CodeInternal       Code = "internal_error"
)

// ServiceError is the normalized error shape propagated between layers.
type ServiceError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with an explicit code and status.
func New(code Code, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

func Unauthorized(message string) *ServiceError {
	return New(CodeUnauthorized, http.StatusUnauthorized, message)
}

func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, http.StatusForbidden, message)
}

func NotFound(message string) *ServiceError {
	return New(CodeNotFound, http.StatusNotFound, message)
}

func Validation(message string, cause error) *ServiceError {
	e := New(CodeValidation, http.StatusBadRequest, message)
	e.cause = cause
	return e
}

// DuplicateDeal marks a second "mark deal" attempt while a prior
// notification for the same triple is still pending.
func DuplicateDeal() *ServiceError {
	return New(CodeDuplicateDeal, http.StatusConflict,
		"You have already marked this deal. Wait for seller confirmation.")
}

// LimitExceeded marks an attempt to list beyond the per-user product cap.
func LimitExceeded(limit int) *ServiceError {
	e := New(CodeLimitExceeded, http.StatusConflict,
		fmt.Sprintf("Product limit of %d active listings reached", limit))
	return e.WithDetails("limit", limit)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, http.StatusConflict, message)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	e := New(CodeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded")
	e.WithDetails("limit", limit)
	return e.WithDetails("window", window)
}

func InvalidToken(cause error) *ServiceError {
	e := New(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token")
	e.cause = cause
	return e
}

func Internal(message string, cause error) *ServiceError {
	e := New(CodeInternal, http.StatusInternalServerError, message)
	e.cause = cause
	return e
}

func Unavailable(message string, cause error) *ServiceError {
	e := New(CodeUnavailable, http.StatusServiceUnavailable, message)
	e.cause = cause
	return e
}

// GetServiceError returns err as a ServiceError if one is in its chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// maxActiveListings mirrors the cap enforced by the product count trigger
// in the database.
const maxActiveListings = 5

// backendError is the loose shape PostgREST and GoTrue return on failure.
type backendError struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
}

func (b backendError) text() string {
	for _, s := range []string{b.Message, b.Msg, b.ErrorDescription, b.Error, b.Details} {
		if s != "" {
			return s
		}
	}
	return ""
}

// FromBackend translates an HTTP status and raw error body from the
// managed backend into a ServiceError. It recognizes the PostgREST
// no-rows code (PGRST116), unique violations (23505), and the trigger
// messages for duplicate deals and the product limit.
func FromBackend(status int, body []byte) *ServiceError {
	var be backendError
	_ = json.Unmarshal(body, &be)
	msg := be.text()
	lower := strings.ToLower(msg)

	switch {
	case be.Code == "PGRST116" || status == http.StatusNotFound:
		se := NotFound("Record not found")
		se.cause = fmt.Errorf("backend: %s", msg)
		return se
	case strings.Contains(lower, "already have a pending") ||
		strings.Contains(lower, "already marked this deal"):
		se := DuplicateDeal()
		se.cause = fmt.Errorf("backend: %s", msg)
		return se
	case strings.Contains(lower, "product limit"):
		se := LimitExceeded(maxActiveListings)
		se.cause = fmt.Errorf("backend: %s", msg)
		return se
	case be.Code == "23505" || status == http.StatusConflict:
		se := Conflict("Record already exists")
		se.cause = fmt.Errorf("backend: %s", msg)
		return se
	case status == http.StatusUnauthorized:
		return Unauthorized(nonEmpty(msg, "Authentication required"))
	case status == http.StatusForbidden:
		return Forbidden(nonEmpty(msg, "Not allowed"))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Validation(nonEmpty(msg, "Invalid request"), nil)
	case status == http.StatusTooManyRequests:
		return RateLimitExceeded(0, "")
	case status >= http.StatusInternalServerError:
		return Unavailable(nonEmpty(msg, "Backend request failed"), nil)
	default:
		return Internal(nonEmpty(msg, fmt.Sprintf("Backend returned status %d", status)), nil)
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
