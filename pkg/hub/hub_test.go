package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-lens/internal/log"
)

func serve(t *testing.T, h *Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, ParseTopics(c.Query("topics"))...).Run()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
}

func TestBroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", log.Discard())
	h.OnJoin(func() []Message {
		return []Message{Text([]byte(`{"hello":true}`))}
	})
	go h.Run(ctx)
	url := serve(t, h)

	var conns []*gorilla.Conn
	for i := 0; i < 2; i++ {
		c, _, err := gorilla.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer c.Close()
		conns = append(conns, c)
	}
	waitClients(t, h, 2)

	if err := h.Publish("count", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	h.Broadcast(Binary("snapshot", []byte{0xFF, 0xD8}))

	for i, c := range conns {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))

		_, join, err := c.ReadMessage()
		if err != nil || string(join) != `{"hello":true}` {
			t.Fatalf("client %d join = %s, %v", i, join, err)
		}
		_, msg, err := c.ReadMessage()
		if err != nil || string(msg) != `{"n":1}` {
			t.Errorf("client %d json = %s, %v", i, msg, err)
		}
		typ, bin, err := c.ReadMessage()
		if err != nil || typ != gorilla.BinaryMessage || len(bin) != 2 {
			t.Errorf("client %d binary = %d %v, %v", i, typ, bin, err)
		}
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", log.Discard())
	go h.Run(ctx)
	url := serve(t, h)

	c, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	waitClients(t, h, 1)
	c.Close()
	waitClients(t, h, 0)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", log.Discard())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	url := serve(t, h)

	c, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	waitClients(t, h, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("hub should report stopped")
	}
	if h.ClientCount() != 0 {
		t.Error("clients should be closed on shutdown")
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Error("expected the connection to close")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", log.Discard())
	for i := 0; i < cap(h.queue)+10; i++ {
		h.Broadcast(Text([]byte("{}")))
	}
	if dropped, _ := h.Stats(); dropped != 10 {
		t.Errorf("dropped = %d, want 10", dropped)
	}
}

func TestTopicFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", log.Discard())
	go h.Run(ctx)
	url := serve(t, h)

	c, _, err := gorilla.DefaultDialer.Dial(url+"?topics=status", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	waitClients(t, h, 1)

	h.Publish("keypoints", []int{1, 2, 3})
	h.Publish("status", "idle")
	h.Broadcast(Text([]byte(`"all"`)))

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{`"idle"`, `"all"`} {
		_, msg, err := c.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if string(msg) != want {
			t.Errorf("got %s, want %s", msg, want)
		}
	}
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"status", 1},
		{"status, keypoints,", 2},
	}
	for _, tt := range tests {
		if got := ParseTopics(tt.in); len(got) != tt.want {
			t.Errorf("ParseTopics(%q) = %v", tt.in, got)
		}
	}
}
