package textdetect

import (
	"errors"

	"github.com/teslashibe/go-lens/internal/httpc"
)

// Sentinel errors for common conditions.
var (
	// ErrBusy is returned when a detection request is already in flight.
	ErrBusy = errors.New("textdetect: request already in flight")

	// ErrInvalidFrame is returned for nil or inconsistent frames.
	ErrInvalidFrame = errors.New("textdetect: invalid frame")

	// ErrMalformedResponse is returned when the response body cannot be decoded.
	ErrMalformedResponse = errors.New("textdetect: malformed response")

	// ErrNoText is returned when the response carries no annotations at all.
	ErrNoText = errors.New("textdetect: no text in response")

	// ErrRejected is returned when a 2xx response carries a per-image error.
	ErrRejected = errors.New("textdetect: image rejected")

	// ErrNoEndpoint is returned when the endpoint is empty.
	ErrNoEndpoint = errors.New("textdetect: endpoint required")
)

// APIError is a non-2xx response from the detection endpoint.
type APIError = httpc.APIError
