// Package video receives a camera stream from a GStreamer webrtcsink
// producer and exposes the latest decoded picture as a frame source.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// maxBuffered caps the H264 bytes kept between keyframes.
const maxBuffered = 8 << 20

// signalMessage covers every message of the webrtcsink signalling protocol
// this client reads or writes.
type signalMessage struct {
	Type      string     `json:"type"`
	PeerID    string     `json:"peerId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Producers []producer `json:"producers,omitempty"`
	SDP       *sdpBody   `json:"sdp,omitempty"`
	ICE       *iceBody   `json:"ice,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpBody struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceBody struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Client consumes one WebRTC video producer.
type Client struct {
	config  *Config
	decoder Decoder
	logger  *slog.Logger

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *webrtc.PeerConnection
	trackCh chan struct{}

	peerID     string
	producerID string
	sessionMu  sync.Mutex
	sessionID  string

	mu      sync.RWMutex
	latest  *frame.Frame
	seq     uint64
	stopped bool

	decoded atomic.Uint64
	closed  atomic.Bool
}

// NewClient creates a client. Call Connect to start streaming.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dec := cfg.Decoder
	if dec == nil {
		dec = &FFmpegDecoder{}
	}
	return &Client{
		config:  cfg,
		decoder: dec,
		logger:  cfg.Logger.With("component", "video.client"),
		trackCh: make(chan struct{}, 1),
	}, nil
}

// Connect performs the signalling handshake and waits for the video track.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	if err := c.handshake(ctx); err != nil {
		return err
	}
	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("video: peer connection: %w", err)
	}
	if err := c.writeSignal(signalMessage{Type: "startSession", PeerID: c.producerID}); err != nil {
		return fmt.Errorf("video: start session: %w", err)
	}

	go c.handleSignalling()

	select {
	case <-c.trackCh:
		c.logger.Info("video connected", "producer", c.producerID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("video: waiting for track: %w", ctx.Err())
	}
}

// handshake dials the signalling server, reads the welcome and picks the
// producer.
func (c *Client) handshake(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.ConnectTimeout}
	ws, _, err := dialer.DialContext(ctx, c.config.SignalURL, nil)
	if err != nil {
		return fmt.Errorf("video: signalling connect: %w", err)
	}
	c.ws = ws

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
		defer ws.SetReadDeadline(time.Time{})
	}

	welcome, err := c.readSignal()
	if err != nil {
		return fmt.Errorf("video: welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("video: expected welcome, got %q", welcome.Type)
	}
	c.peerID = welcome.PeerID

	if err := c.writeSignal(signalMessage{Type: "list"}); err != nil {
		return fmt.Errorf("video: list producers: %w", err)
	}
	list, err := c.readSignal()
	if err != nil {
		return fmt.Errorf("video: list producers: %w", err)
	}

	id, err := pickProducer(list.Producers, c.config.Producer)
	if err != nil {
		return err
	}
	c.producerID = id
	c.logger.Debug("producer selected", "peer", c.peerID, "producer", id)
	return nil
}

func pickProducer(producers []producer, name string) (string, error) {
	for _, p := range producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	if name == "" {
		return "", errors.New("video: no producers available")
	}
	return "", fmt.Errorf("video: producer %q not found in %d producers", name, len(producers))
}

func (c *Client) readSignal() (*signalMessage, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) writeSignal(msg signalMessage) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("peer connection state", "state", state.String())
	})
	return nil
}

func (c *Client) handleSignalling() {
	for !c.closed.Load() {
		msg, err := c.readSignal()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling ended", "error", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			c.sessionMu.Lock()
			c.sessionID = msg.SessionID
			c.sessionMu.Unlock()
		case "peer":
			if err := c.handlePeerMessage(msg); err != nil {
				c.logger.Warn("peer message failed", "error", err)
			}
		case "endSession":
			c.logger.Info("session ended by producer")
			return
		}
	}
}

func (c *Client) handlePeerMessage(msg *signalMessage) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return c.writeSignal(signalMessage{
			Type:      "peer",
			SessionID: c.session(),
			SDP:       &sdpBody{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}

	if msg.ICE != nil {
		return c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
	}
	return nil
}

func (c *Client) session() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionID
}

func (c *Client) sendICECandidate(candidate *webrtc.ICECandidate) {
	session := c.session()
	if session == "" {
		return
	}
	init := candidate.ToJSON()
	err := c.writeSignal(signalMessage{
		Type:      "peer",
		SessionID: session,
		ICE: &iceBody{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		},
	})
	if err != nil {
		c.logger.Debug("send ICE candidate failed", "error", err)
	}
}

func (c *Client) handleVideoTrack(track *webrtc.TrackRemote) {
	select {
	case c.trackCh <- struct{}{}:
	default:
	}

	asm := newAssembler(maxBuffered)
	lastDecode := time.Time{}

	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			c.logger.Debug("track ended", "error", err)
			return
		}

		complete, err := asm.push(pkt)
		if err != nil {
			c.logger.Debug("depacketize failed", "error", err)
			continue
		}
		if !complete || !c.Capturing() || time.Since(lastDecode) < c.config.DecodeInterval {
			continue
		}
		lastDecode = time.Now()

		img, err := c.decoder.Decode(context.Background(), asm.bytes())
		if err != nil {
			c.logger.Debug("decode skipped", "error", err)
			continue
		}
		c.store(img)
	}
}

// store converts a decoded picture into the current frame, reusing the
// buffer while the size is unchanged.
func (c *Client) store(img image.Image) {
	b := img.Bounds()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.latest == nil || c.latest.Width != b.Dx() || c.latest.Height != b.Dy() {
		c.latest = frame.FromImage(img)
	} else {
		c.latest.CopyFrom(img)
	}
	c.seq++
	c.latest.Seq = c.seq
	c.latest.CapturedAt = time.Now()
	c.decoded.Add(1)
}

// Decoded returns the number of pictures decoded so far.
func (c *Client) Decoded() uint64 {
	return c.decoded.Load()
}

// Capturing reports whether decoded pictures are being kept.
func (c *Client) Capturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.stopped
}

// Ready implements frame.Source.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.stopped && c.latest != nil
}

// Size implements frame.Source.
func (c *Client) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return 0, 0
	}
	return c.latest.Width, c.latest.Height
}

// ReadPixels implements frame.Source.
func (c *Client) ReadPixels(dst []uint8) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped || c.latest == nil {
		return frame.ErrNoFrame
	}
	if len(dst) != len(c.latest.Pix) {
		return fmt.Errorf("%w: got %d, want %d", frame.ErrSizeMismatch, len(dst), len(c.latest.Pix))
	}
	copy(dst, c.latest.Pix)
	return nil
}

// Seq implements frame.Sequencer.
func (c *Client) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Stop implements frame.Source. The stream stays connected but pictures
// are discarded until Start.
func (c *Client) Stop() error {
	c.mu.Lock()
	c.stopped = true
	c.latest = nil
	c.mu.Unlock()
	return nil
}

// Start implements frame.Starter.
func (c *Client) Start() error {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
	return nil
}

// Close tears down the peer connection and the signalling socket.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if c.pc != nil {
		errs = append(errs, c.pc.Close())
	}
	if c.ws != nil {
		errs = append(errs, c.ws.Close())
	}
	return errors.Join(errs...)
}

var (
	_ frame.Source    = (*Client)(nil)
	_ frame.Starter   = (*Client)(nil)
	_ frame.Sequencer = (*Client)(nil)
)
