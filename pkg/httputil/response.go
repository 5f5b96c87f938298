package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable class of an error response
type ErrorCode string

const (
	CodeBadRequest  ErrorCode = "bad_request"
	CodeNotFound    ErrorCode = "not_found"
	CodeConflict    ErrorCode = "conflict"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeUnavailable ErrorCode = "unavailable"
	CodeInternal    ErrorCode = "internal"
)

var statusCodes = map[int]ErrorCode{
	http.StatusBadRequest:         CodeBadRequest,
	http.StatusNotFound:           CodeNotFound,
	http.StatusConflict:           CodeConflict,
	http.StatusTooManyRequests:    CodeRateLimited,
	http.StatusServiceUnavailable: CodeUnavailable,
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    ErrorCode         `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes data with the given status. The body is encoded before
// anything is written, so an encoding failure still produces a 500.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		WriteInternalError(w, fmt.Errorf("failed to encode response"))
		return fmt.Errorf("failed to encode response: %w", err)
	}
	writeBody(w, status, body)
	return nil
}

// WriteError writes an error body whose code is derived from status
func WriteError(w http.ResponseWriter, status int, message string, details map[string]string) {
	code, ok := statusCodes[status]
	if !ok {
		code = CodeInternal
	}
	// only strings, cannot fail
	body, _ := json.Marshal(ErrorResponse{Error: message, Code: code, Details: details})
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, nil)
}

// WriteNotFound writes a 404
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, nil)
}

// WriteConflict writes a 409
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, nil)
}

// WriteUnavailable writes a 503
func WriteUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, message, nil)
}

// WriteInternalError writes a 500
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err.Error(), nil)
}
