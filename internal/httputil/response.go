// Package httputil provides shared request and response helpers for the
// HTTP surface.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
)

// MaxBodyBytes caps request bodies. Product image uploads go through
// multipart with their own ceiling; JSON bodies never need more.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error fields.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	TraceID string         `json:"trace_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteErrorResponse writes the standard error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := ErrorBody{Error: ErrorDetail{
		Code:    code,
		Message: message,
		TraceID: logging.GetTraceID(r.Context()),
		Details: details,
	}}
	WriteJSON(w, status, body)
}

// WriteError translates any error into the envelope, defaulting unknown
// errors to an opaque internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := svcerr.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = svcerr.Internal("Internal server error", err)
	}
	WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

// Unauthorized writes a 401 with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: ErrorDetail{
		Code:    string(svcerr.CodeUnauthorized),
		Message: message,
	}})
}

// ReadJSON decodes the request body into dst, rejecting unknown fields
// and oversized bodies.
func ReadJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return svcerr.Validation("Request body is required", nil)
		}
		return svcerr.Validation("Invalid request body", err)
	}
	return nil
}
