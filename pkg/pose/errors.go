package pose

import (
	"errors"

	"github.com/teslashibe/go-lens/internal/httpc"
)

// Sentinel errors.
var (
	// ErrBusy is returned when a detection request is already in flight.
	ErrBusy = errors.New("pose: request in flight")

	// ErrInvalidFrame is returned for nil or inconsistent frames.
	ErrInvalidFrame = errors.New("pose: invalid frame")

	// ErrMalformedResponse is returned when the body is not the expected JSON.
	ErrMalformedResponse = errors.New("pose: malformed response")

	// ErrNoEndpoint is returned when no detect URL is configured.
	ErrNoEndpoint = errors.New("pose: no endpoint configured")
)

// APIError is a non-2xx response from the pose service.
type APIError = httpc.APIError
