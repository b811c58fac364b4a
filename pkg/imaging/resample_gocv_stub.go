//go:build !gocv

package imaging

import "fmt"

// newGoCVResampler returns an error when built without the gocv tag.
func newGoCVResampler() (Resampler, error) {
	return nil, fmt.Errorf("%w: build with -tags gocv", ErrBackendUnavailable)
}
