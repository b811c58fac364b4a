package translation

import (
	"errors"

	"github.com/teslashibe/go-lens/internal/httpc"
)

// Sentinel errors for common conditions.
var (
	// ErrMalformedResponse is returned when the response body cannot be decoded.
	ErrMalformedResponse = errors.New("translation: malformed response")

	// ErrNoTranslations is returned when the response has no translations.
	ErrNoTranslations = errors.New("translation: no translations in response")

	// ErrNoEndpoint is returned when the endpoint is empty.
	ErrNoEndpoint = errors.New("translation: endpoint required")

	// ErrNoTarget is returned when the target language is empty.
	ErrNoTarget = errors.New("translation: target language required")
)

// APIError is a non-2xx response from the translation endpoint.
type APIError = httpc.APIError
