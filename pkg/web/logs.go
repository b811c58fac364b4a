package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// LogBuffer keeps the most recent log entries and notifies subscribers.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	size    int
	subs    []func(LogEntry)
}

// NewLogBuffer keeps at most size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 500
	}
	return &LogBuffer{entries: make([]LogEntry, 0, size), size: size}
}

// Add appends an entry, evicting the oldest when full.
func (b *LogBuffer) Add(e LogEntry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.size {
		b.entries = b.entries[1:]
	}
	subs := b.subs
	b.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Subscribe registers fn for every future entry.
func (b *LogBuffer) Subscribe(fn func(LogEntry)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Handler returns a slog.Handler that forwards to next and also records
// records at or above level into the buffer.
func (b *LogBuffer) Handler(next slog.Handler, level slog.Level) slog.Handler {
	return &teeHandler{next: next, buf: b, level: level}
}

type teeHandler struct {
	next   slog.Handler
	buf    *LogBuffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level || h.next.Enabled(ctx, l)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		h.buf.Add(h.entry(r))
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	prefix := strings.Join(h.groups, ".")
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

func (h *teeHandler) entry(r slog.Record) LogEntry {
	e := LogEntry{
		Time:  r.Time.Format(time.TimeOnly),
		Level: strings.ToLower(r.Level.String()),
	}

	var sb strings.Builder
	sb.WriteString(r.Message)
	write := func(a slog.Attr) {
		if a.Key == "component" {
			e.Component = a.Value.String()
			return
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		write(a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		write(a)
		return true
	})
	e.Message = sb.String()
	return e
}
