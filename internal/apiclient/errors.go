package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for every non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Message and Errors follow the backend's validation envelope:
	// {"message": "...", "errors": {"field": ["..."]}}.
	Message string
	Errors  map[string][]string
	Body    []byte
}

func (e *APIError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, status, e.Message)
}

// HTTPStatus exposes the status code to error classifiers.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// FieldError returns the first validation message for field, if any.
func (e *APIError) FieldError(field string) string {
	if msgs := e.Errors[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, StatusCode: status, Body: body}

	var envelope struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(envelope.Message)

	// Errors is usually a field map but some endpoints send a bare list, which
	// stands in for the message when none was given.
	var fields map[string][]string
	if err := json.Unmarshal(envelope.Errors, &fields); err == nil {
		if len(fields) > 0 {
			apiErr.Errors = fields
		}
		return apiErr
	}
	var list []string
	if err := json.Unmarshal(envelope.Errors, &list); err == nil && apiErr.Message == "" {
		apiErr.Message = strings.Join(list, "; ")
	}
	return apiErr
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	return StatusCode(err) == status
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}
