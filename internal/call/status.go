package call

import "time"

// Status is a call's externally visible lifecycle phase.
type Status int

const (
	StatusRinging Status = iota
	StatusConnected
	StatusInput
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusRinging:
		return "ringing"
	case StatusConnected:
		return "connected"
	case StatusInput:
		return "input"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StatusEvent is one status notification emitted to the status sink. The
// session emits at most one StatusEnded event per call id; any further
// deduplication or "recently ended" suppression is the consumer's concern.
type StatusEvent struct {
	CallID    string    `json:"call_id"`
	Status    Status    `json:"-"`
	StatusStr string    `json:"status"`
	LastInput string    `json:"last_input,omitempty"`
	Active    bool      `json:"active"`
	Time      time.Time `json:"time"`
}

// Notifier receives call status events. Implementations must not block;
// the session emits events inline from its own loop.
type Notifier interface {
	Notify(ev StatusEvent)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev StatusEvent)

func (f NotifierFunc) Notify(ev StatusEvent) { f(ev) }

// MultiNotifier fans one event out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ev StatusEvent) {
	for _, n := range m {
		n.Notify(ev)
	}
}
