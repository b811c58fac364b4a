package video

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"

	"github.com/teslashibe/go-lens/internal/log"
	"github.com/teslashibe/go-lens/pkg/frame"
)

func signallingServer(t *testing.T, producers string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome","peerId":"me-123"}`))

		var req signalMessage
		if err := ws.ReadJSON(&req); err != nil || req.Type != "list" {
			t.Errorf("expected list request, got %+v (%v)", req, err)
			return
		}
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"list","producers":`+producers+`}`))
		ws.ReadMessage()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHandshakeSelectsProducer(t *testing.T) {
	url := signallingServer(t, `[{"id":"p1","meta":{"name":"other"}},{"id":"p2","meta":{"name":"headset"}}]`)

	c, err := NewClient(WithSignalURL(url), WithProducer("headset"), WithLogger(log.Discard()),
		WithConnectTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.handshake(context.Background()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if c.peerID != "me-123" || c.producerID != "p2" {
		t.Errorf("peer=%q producer=%q", c.peerID, c.producerID)
	}
}

func TestHandshakeProducerMissing(t *testing.T) {
	url := signallingServer(t, `[{"id":"p1","meta":{"name":"other"}}]`)

	c, _ := NewClient(WithSignalURL(url), WithProducer("headset"), WithLogger(log.Discard()),
		WithConnectTimeout(2*time.Second))
	defer c.Close()

	err := c.handshake(context.Background())
	if err == nil || !strings.Contains(err.Error(), "headset") {
		t.Errorf("expected missing producer error, got %v", err)
	}
}

func TestPickProducer(t *testing.T) {
	producers := []producer{{ID: "a", Meta: map[string]string{"name": "x"}}, {ID: "b"}}

	if id, _ := pickProducer(producers, ""); id != "a" {
		t.Errorf("empty name should pick the first producer, got %q", id)
	}
	if _, err := pickProducer(nil, ""); err == nil {
		t.Error("expected error with no producers")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrNoSignalURL) {
		t.Errorf("expected ErrNoSignalURL, got %v", err)
	}
}

func TestNALTypes(t *testing.T) {
	data := []byte{
		0, 0, 0, 1, 0x09, 0xf0, // AUD
		0, 0, 1, 0x67, 0x42, // SPS, 3-byte start code
		0, 0, 0, 1, 0x65, 0x88, // IDR
	}
	got := nalTypes(data)
	want := []byte{9, 7, 5}
	if string(got) != string(want) {
		t.Errorf("nalTypes = %v, want %v", got, want)
	}
	if !startsSequence(data) {
		t.Error("SPS should start a sequence")
	}
	if startsSequence([]byte{0, 0, 0, 1, 0x41, 0x9a}) {
		t.Error("P slice must not start a sequence")
	}
}

func TestAssemblerWaitsForKeyframe(t *testing.T) {
	asm := newAssembler(0)

	pSlice := &rtp.Packet{Header: rtp.Header{Marker: true}, Payload: []byte{0x41, 0x9a, 0x01}}
	complete, err := asm.push(pSlice)
	if err != nil {
		t.Fatal(err)
	}
	if complete || len(asm.bytes()) != 0 {
		t.Error("slices before a keyframe must be dropped")
	}

	sps := &rtp.Packet{Payload: []byte{0x67, 0x42, 0x00}}
	idr := &rtp.Packet{Header: rtp.Header{Marker: true}, Payload: []byte{0x65, 0x88, 0x84}}
	if complete, _ := asm.push(sps); complete {
		t.Error("SPS without marker should not complete")
	}
	complete, _ = asm.push(idr)
	if !complete {
		t.Error("marker after keyframe should complete an access unit")
	}
	if types := nalTypes(asm.bytes()); string(types) != string([]byte{7, 5}) {
		t.Errorf("buffered NAL types = %v", types)
	}

	asm.push(pSlice)
	if types := nalTypes(asm.bytes()); len(types) != 3 {
		t.Errorf("P slice after keyframe should be kept, got %v", types)
	}

	asm.push(sps)
	if types := nalTypes(asm.bytes()); len(types) != 1 {
		t.Errorf("new SPS should reset the buffer, got %v", types)
	}
}

func TestAssemblerLimit(t *testing.T) {
	asm := newAssembler(8)
	asm.push(&rtp.Packet{Payload: []byte{0x67, 1, 2, 3, 4, 5, 6, 7, 8}})
	if len(asm.bytes()) != 0 {
		t.Error("buffer over the limit should be dropped")
	}
}

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestLooksBlank(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"black", solid(64, 64, color.RGBA{A: 255}), true},
		{"flat gray", solid(64, 64, color.RGBA{R: 128, G: 128, B: 128, A: 255}), true},
		{"tiny", solid(8, 8, color.RGBA{R: 200, A: 255}), true},
		{"colored", solid(64, 64, color.RGBA{R: 200, G: 80, B: 20, A: 255}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksBlank(tt.img); got != tt.want {
				t.Errorf("looksBlank = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFFmpegDecoderShortInput(t *testing.T) {
	d := &FFmpegDecoder{Path: "/nonexistent/ffmpeg"}
	if _, err := d.Decode(context.Background(), []byte{0, 0, 0, 1}); !errors.Is(err, ErrNoPicture) {
		t.Errorf("expected ErrNoPicture, got %v", err)
	}
}

func TestClientSourceSemantics(t *testing.T) {
	c, err := NewClient(WithSignalURL("ws://unused"), WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}

	if c.Ready() {
		t.Fatal("no picture yet")
	}

	c.store(solid(32, 16, color.RGBA{R: 200, G: 80, B: 20, A: 255}))
	f, err := frame.Read(c)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if f.Width != 32 || f.Height != 16 || f.Seq != 1 || f.Pix[0] != 200 {
		t.Errorf("frame %dx%d seq %d pix %v", f.Width, f.Height, f.Seq, f.Pix[:3])
	}

	var snap frame.Snapshotter
	if _, err := snap.Capture(c); err != nil {
		t.Fatal(err)
	}
	if c.Ready() {
		t.Error("Stop must discard the picture")
	}

	c.store(solid(32, 16, color.RGBA{R: 1, A: 255}))
	if c.Ready() {
		t.Error("pictures decoded while stopped must be ignored")
	}

	c.Start()
	c.store(solid(32, 16, color.RGBA{R: 2, A: 255}))
	if !c.Ready() || c.Decoded() != 2 {
		t.Errorf("ready=%v decoded=%d", c.Ready(), c.Decoded())
	}
}
