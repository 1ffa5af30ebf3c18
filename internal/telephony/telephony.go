// Package telephony defines the boundary between the call-handling logic
// and the signaling stack that delivers calls. The SIP front end implements
// these interfaces; tests implement them with in-memory fakes.
package telephony

import (
	"context"
	"time"
)

// Call is one inbound call leg as seen by the session controller. All
// methods are safe for concurrent use. Callback registration must happen
// before Answer so no early event is lost.
type Call interface {
	// ID returns the stack's unique identifier for this call.
	ID() string

	// Caller returns the far end's display name and number. Either may be
	// empty when the stack could not determine it.
	Caller() (name, number string)

	// Answer accepts the call and starts media flow.
	Answer(ctx context.Context) error

	// Hangup tears the call down locally. Idempotent.
	Hangup() error

	// Active reports whether the call leg is still up. It turns false on
	// remote hangup, local hangup, and media loss.
	Active() bool

	// SendAudio transmits one window of companded audio to the far end.
	SendAudio(sampleCount int, payload []byte) error

	// OnHangup registers a callback fired once when the far end terminates
	// or the leg is lost.
	OnHangup(fn func())

	// OnTone registers a callback for digit reports from the signaling
	// path. The symbol string is the stack's raw representation.
	OnTone(fn func(symbol string, duration time.Duration))

	// OnMediaPacket registers a callback for each received media payload,
	// identified by its RTP payload type.
	OnMediaPacket(fn func(payloadType int, payload []byte))
}

// Handler processes one inbound call from answer to teardown. The stack
// invokes it on its own goroutine per call.
type Handler interface {
	HandleCall(ctx context.Context, call Call)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, call Call)

func (f HandlerFunc) HandleCall(ctx context.Context, call Call) { f(ctx, call) }
