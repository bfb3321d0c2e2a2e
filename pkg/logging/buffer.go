package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record, shaped for the logs API.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"ts"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// RingBuffer keeps the most recent log entries in memory so operators can
// read them back without shell access to the host.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

func (b *RingBuffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
}

// Recent returns up to n entries, oldest first.
func (b *RingBuffer) Recent(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.next
	if b.full {
		count = len(b.entries)
	}
	if n <= 0 || n > count {
		n = count
	}
	if n == 0 {
		return nil
	}

	out := make([]Entry, 0, n)
	start := b.next - n
	if start < 0 {
		start += len(b.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%len(b.entries)])
	}
	return out
}

// Len reports how many entries are buffered.
func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// bufferHandler tees records into a RingBuffer on their way to the inner
// handler.
type bufferHandler struct {
	buffer *RingBuffer
	inner  slog.Handler
	attrs  []slog.Attr
}

func newBufferHandler(buffer *RingBuffer, inner slog.Handler) *bufferHandler {
	return &bufferHandler{buffer: buffer, inner: inner}
}

func (h *bufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *bufferHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Level:     r.Level.String(),
		Timestamp: r.Time.Format(time.RFC3339Nano),
		Message:   r.Message,
		Attrs:     make(map[string]any),
	}
	record := func(a slog.Attr) {
		if a.Key == "component" {
			entry.Component = a.Value.String()
			return
		}
		entry.Attrs[a.Key] = a.Value.Any()
	}
	for _, a := range h.attrs {
		record(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		record(a)
		return true
	})
	if len(entry.Attrs) == 0 {
		entry.Attrs = nil
	}
	h.buffer.add(entry)
	return h.inner.Handle(ctx, r)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &bufferHandler{buffer: h.buffer, inner: h.inner.WithAttrs(attrs), attrs: merged}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	return &bufferHandler{buffer: h.buffer, inner: h.inner.WithGroup(name), attrs: h.attrs}
}
