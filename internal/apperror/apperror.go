// Package apperror is the small internal error taxonomy HTTP handlers
// and middleware adapt unstructured errors into: a stable code, a
// human message, and optional structured details, always rendered as
// the same JSON envelope.
package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error carries a stable machine-readable Code alongside its message,
// so handlers can map it to an HTTP status without string matching.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Code: e.Code, Message: e.Message, Status: e.Status, Details: merged}
}

func New(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

var (
	ErrNotFound         = New(http.StatusNotFound, "NOT_FOUND", "the requested resource was not found")
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed on this route")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service is not ready")
	ErrInternal         = New(http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
)

// ErrorBody is the wire shape of the JSON envelope every error
// response shares, regardless of which layer produced it.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the top-level envelope: {"error": {...}}.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Adapt classifies err into a status code and an Error, defaulting
// unrecognized errors to ErrInternal so no handler ever leaks a bare
// Go error string to a client.
func Adapt(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: ErrInternal.Code, Message: ErrInternal.Message, Status: http.StatusInternalServerError}
}

// RespondWithError writes err as the standard JSON error envelope,
// tagging it with requestID when present.
func RespondWithError(w http.ResponseWriter, requestID string, err error) {
	appErr := Adapt(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: ErrorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID,
		Details:   appErr.Details,
	}})
}
