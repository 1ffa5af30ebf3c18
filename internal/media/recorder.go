package media

import "sync"

// CallRecording accumulates the companded audio of one call. The inbound
// buffer is fed by the packet-receive callback; the outbound buffer by the
// pacing engine; the assistant buffer captures caller speech while the
// assistant or voicemail recording mode is open.
//
// All buffers are append-only during the call and owned exclusively by the
// call's task. Appends are serialized with a mutex because the packet
// callback and the pacing loop run concurrently.
type CallRecording struct {
	mu        sync.Mutex
	enabled   bool
	inbound   []byte
	outbound  []byte
	assistant []byte
	capturing bool
}

// NewCallRecording creates the recording buffers for one call. When enabled
// is false, inbound/outbound appends are dropped but capture (voicemail,
// assistant input) still works. Capture is functional input, not an
// archival recording.
func NewCallRecording(enabled bool) *CallRecording {
	return &CallRecording{enabled: enabled}
}

// AppendInbound adds received voice payload bytes (already companded) to the
// inbound buffer and, while capture mode is open, to the assistant buffer.
func (r *CallRecording) AppendInbound(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capturing {
		r.assistant = append(r.assistant, payload...)
	}
	if r.enabled {
		r.inbound = append(r.inbound, payload...)
	}
}

// AppendOutbound adds a transmitted companded window to the outbound buffer.
func (r *CallRecording) AppendOutbound(frame []byte) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.outbound = append(r.outbound, frame...)
	r.mu.Unlock()
}

// StartCapture opens assistant/voicemail capture: subsequent inbound audio
// is also accumulated into the assistant buffer.
func (r *CallRecording) StartCapture() {
	r.mu.Lock()
	r.assistant = r.assistant[:0]
	r.capturing = true
	r.mu.Unlock()
}

// StopCapture closes capture mode and returns the captured companded bytes,
// clearing the buffer for the next capture.
func (r *CallRecording) StopCapture() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = false
	out := r.assistant
	r.assistant = nil
	return out
}

// Capturing reports whether assistant/voicemail capture is open.
func (r *CallRecording) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Mixdown mixes the inbound and outbound buffers into a WAV file image
// (mono 8 kHz 16-bit PCM). Returns nil when recording is disabled or both
// buffers are empty.
func (r *CallRecording) Mixdown() []byte {
	r.mu.Lock()
	inbound := r.inbound
	outbound := r.outbound
	r.mu.Unlock()

	if len(inbound) == 0 && len(outbound) == 0 {
		return nil
	}
	return EncodeWAV(MixDuplex(inbound, outbound))
}

// Sizes returns the current byte counts of the inbound and outbound buffers.
func (r *CallRecording) Sizes() (inbound, outbound int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbound), len(r.outbound)
}
