package frame

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFrameImageInterface(t *testing.T) {
	f, err := New(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	copy(f.Pix[3:6], []uint8{10, 20, 30})

	got := f.At(1, 0).(color.RGBA)
	if got != (color.RGBA{10, 20, 30, 255}) {
		t.Errorf("At(1,0) = %v", got)
	}
	if f.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Errorf("Bounds = %v", f.Bounds())
	}
	if f.At(5, 5) != (color.RGBA{}) {
		t.Error("out-of-bounds At should be zero")
	}
}

func TestNewRejectsInvalidSize(t *testing.T) {
	if _, err := New(0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f, _ := New(1, 1)
	c := f.Clone()
	c.Pix[0] = 99
	if f.Pix[0] == 99 {
		t.Error("clone shares pixels with original")
	}
}

func TestRGBARoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(2, 1, color.RGBA{1, 2, 3, 255})

	f := FromImage(src)
	if !f.Valid() {
		t.Fatal("frame not valid")
	}
	back := f.ToRGBA(nil)
	if back.RGBAAt(2, 1) != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("pixel lost: %v", back.RGBAAt(2, 1))
	}
}

func TestSnapshotterCapture(t *testing.T) {
	t.Run("copies then stops", func(t *testing.T) {
		src := NewMock(4, 3, 7)
		var s Snapshotter

		f, err := s.Capture(src)
		if err != nil {
			t.Fatalf("Capture failed: %v", err)
		}
		if f.Width != 4 || f.Height != 3 || f.Pix[0] != 7 {
			t.Errorf("unexpected frame %dx%d pix0=%d", f.Width, f.Height, f.Pix[0])
		}
		if !src.Stopped() {
			t.Error("source should be stopped after capture")
		}

		calls := src.Calls()
		if calls[len(calls)-1].Method != "Stop" {
			t.Errorf("Stop should be the last call, got %s", calls[len(calls)-1].Method)
		}
	})

	t.Run("reuses buffer", func(t *testing.T) {
		src := NewMock(4, 3, 1)
		var s Snapshotter

		a, _ := s.Peek(src)
		src.Frame.Pix[0] = 2
		b, _ := s.Peek(src)
		if a != b {
			t.Error("expected the same buffer to be reused")
		}
		if a.Pix[0] != 2 {
			t.Error("buffer not overwritten")
		}
		if src.Stopped() {
			t.Error("Peek must not stop the source")
		}
	})

	t.Run("not ready", func(t *testing.T) {
		src := &Mock{}
		var s Snapshotter
		if _, err := s.Capture(src); !errors.Is(err, ErrNoFrame) {
			t.Errorf("expected ErrNoFrame, got %v", err)
		}
		if src.CallCount("Stop") != 0 {
			t.Error("Stop must not be called when no frame was captured")
		}
	})
}

func TestImageSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	path := filepath.Join(t.TempDir(), "in.png")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(file, img); err != nil {
		t.Fatal(err)
	}
	file.Close()

	src, err := OpenImage(path)
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}

	w, h := src.Size()
	if w != 8 || h != 6 {
		t.Errorf("Size = %dx%d, want 8x6", w, h)
	}

	if err := src.ReadPixels(make([]uint8, 3)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}

	src.Stop()
	if src.Ready() {
		t.Error("stopped source should not be ready")
	}
	src.Start()
	if !src.Ready() {
		t.Error("restarted source should be ready")
	}

	f, err := Read(src)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if f.Seq != 1 {
		t.Errorf("Seq = %d, want 1", f.Seq)
	}
}
