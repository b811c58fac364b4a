package httpc

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// APIError represents a non-2xx response from a remote API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API, or the raw body.
	Message string

	// Body is the (truncated) raw response body.
	Body string

	// Provider identifies which service returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized returns true for 401 and 403. Google returns 403 for
// invalid or restricted API keys.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// ErrorAttrs returns slog key/value pairs describing err. An *APIError in
// the chain adds its status and classification.
func ErrorAttrs(err error) []any {
	attrs := []any{"error", err}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs,
			"status", apiErr.StatusCode,
			"unauthorized", apiErr.IsUnauthorized(),
			"rate_limited", apiErr.IsRateLimited(),
			"server_error", apiErr.IsServerError(),
		)
	}
	return attrs
}

// CheckResponse returns nil for 2xx responses and an *APIError otherwise.
// Google's {"error":{...}} envelope is decoded when present.
func CheckResponse(provider string, resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Provider: provider}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.Body = Truncate(gerr.Body, MaxErrorBody)
		apiErr.Message = gerr.Message
		if apiErr.Message == "" {
			apiErr.Message = Truncate(gerr.Body, 200)
		}
	} else {
		apiErr.Message = err.Error()
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
