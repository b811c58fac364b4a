package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"
)

// ErrNoPicture is returned when the data did not yield a usable picture.
var ErrNoPicture = errors.New("video: no picture decoded")

// Decoder turns an Annex-B H264 access unit sequence into one picture.
type Decoder interface {
	Decode(ctx context.Context, annexB []byte) (image.Image, error)
}

// FFmpegDecoder pipes H264 through a short-lived ffmpeg process and reads
// back one MJPEG picture.
type FFmpegDecoder struct {
	// Path is the ffmpeg binary (default "ffmpeg").
	Path string

	// Timeout bounds one decode (default 200ms).
	Timeout time.Duration
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, annexB []byte) (image.Image, error) {
	if len(annexB) < 100 {
		return nil, ErrNoPicture
	}

	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		// ffmpeg exits non-zero when the data holds no complete picture.
		return nil, fmt.Errorf("%w: %v: %s", ErrNoPicture, err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPicture, err)
	}
	if looksBlank(img) {
		return nil, ErrNoPicture
	}
	return img, nil
}

// looksBlank detects the black or flat gray pictures a decoder emits before
// the first keyframe.
func looksBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return true
	}

	var rSum, gSum, bSum, samples int
	stepX, stepY := max(1, b.Dx()/10), max(1, b.Dy()/10)
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			samples++
		}
	}

	avgR, avgG, avgB := rSum/samples, gSum/samples, bSum/samples
	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}

	diff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return diff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
