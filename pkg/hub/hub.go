package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub owns a set of clients and fans messages out to them.
type Hub struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	queue      chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// onJoin supplies the backlog a client receives before live messages.
	onJoin func() []Message

	running atomic.Bool
	dropped atomic.Uint64
	evicted atomic.Uint64
}

// New creates a hub. Call Run to start it.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		queue:      make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnJoin sets the backlog function. Call before Run.
func (h *Hub) OnJoin(fn func() []Message) {
	h.onJoin = fn
}

// Run owns the client set until ctx is done, then closes every client.
// A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.join(c)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client left", "clients", n)

		case msg := <-h.queue:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) join(c *Client) {
	if h.onJoin != nil {
		for _, msg := range h.onJoin() {
			if !c.wants(msg) {
				continue
			}
			select {
			case c.send <- msg:
			default:
			}
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client joined", "clients", n)
}

// fanOut delivers msg to every interested client. A client whose buffer is
// full is evicted so one stalled browser cannot hold up the rest.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.evicted.Add(1)
		}
	}
}

// Broadcast queues msg without blocking. Messages are dropped when the
// queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.queue <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Publish encodes v as JSON and broadcasts it on topic.
func (h *Hub) Publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Kind: KindText, Topic: topic, Data: data})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports how many messages were dropped at the queue and how many
// slow clients were evicted.
func (h *Hub) Stats() (dropped, evicted uint64) {
	return h.dropped.Load(), h.evicted.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
