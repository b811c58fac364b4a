//go:build !gocv

package webcam

// Open returns ErrUnavailable without the gocv build tag.
func Open(cfg Config) (Camera, error) {
	return nil, ErrUnavailable
}
