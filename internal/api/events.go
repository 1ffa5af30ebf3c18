package api

import (
	"net/http"
	"sync"

	"github.com/autovox/autovox/internal/call"
)

// StatusHistory keeps the most recent call status events in a fixed-size
// ring. It implements call.Notifier, so main can fan session events into
// both the structured log and this buffer.
type StatusHistory struct {
	mu   sync.Mutex
	buf  []call.StatusEvent
	next int
	full bool
}

// NewStatusHistory creates a history holding up to capacity events.
func NewStatusHistory(capacity int) *StatusHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &StatusHistory{buf: make([]call.StatusEvent, capacity)}
}

// Notify records one event, evicting the oldest when the ring is full.
func (h *StatusHistory) Notify(ev call.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = ev
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// Recent returns the stored events, newest first.
func (h *StatusHistory) Recent() []call.StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.buf)
	}
	out := make([]call.StatusEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := h.next - i
		if idx < 0 {
			idx += len(h.buf)
		}
		out = append(out, h.buf[idx])
	}
	return out
}

// handleCallEvents returns the recent call status events, newest first.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []call.StatusEvent{})
		return
	}
	writeJSON(w, http.StatusOK, s.events.Recent())
}
