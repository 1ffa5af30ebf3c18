// Package call implements the per-call state machine: lifecycle state,
// digit delivery, the active-call registry, menu action dispatch and the
// session controller that owns one call from answer to teardown.
package call

import (
	"sync"
	"sync/atomic"
)

// digitQueueCap bounds the pending digit queue. Rapid dialing beyond the
// cap drops the oldest undelivered digit rather than the newest.
const digitQueueCap = 4

// State is the mutable record of one active call, shared between the
// session loop and the signaling/media callbacks. The active flag is the
// sole cross-goroutine termination signal and is atomic; digit delivery
// is serialized with a mutex.
type State struct {
	active             atomic.Bool
	recordingAssistant atomic.Bool
	recordingVoicemail atomic.Bool

	mu     sync.Mutex
	digits []byte
}

// NewState creates the state record for a newly accepted call.
func NewState() *State {
	s := &State{}
	s.active.Store(true)
	return s
}

// Active reports whether the call is still considered up.
func (s *State) Active() bool {
	return s.active.Load()
}

// Deactivate marks the call as terminated. Idempotent; every loop in the
// session observes the flag within one pacing window.
func (s *State) Deactivate() {
	s.active.Store(false)
}

// PushDigit queues an accepted DTMF symbol for the menu loop. When the
// queue is full the oldest undelivered digit is dropped.
func (s *State) PushDigit(d byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.digits) >= digitQueueCap {
		s.digits = s.digits[1:]
	}
	s.digits = append(s.digits, d)
}

// PopDigit removes and returns the oldest pending digit.
func (s *State) PopDigit() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.digits) == 0 {
		return 0, false
	}
	d := s.digits[0]
	s.digits = s.digits[1:]
	return d, true
}

// HasDigit reports whether a digit is pending without consuming it. Used
// as the playback interrupt predicate.
func (s *State) HasDigit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.digits) > 0
}

// ClearDigits discards all pending digits.
func (s *State) ClearDigits() {
	s.mu.Lock()
	s.digits = s.digits[:0]
	s.mu.Unlock()
}

// SetRecordingAssistant toggles assistant input capture mode.
func (s *State) SetRecordingAssistant(v bool) { s.recordingAssistant.Store(v) }

// RecordingAssistant reports whether assistant input capture is open.
func (s *State) RecordingAssistant() bool { return s.recordingAssistant.Load() }

// SetRecordingVoicemail toggles voicemail capture mode.
func (s *State) SetRecordingVoicemail(v bool) { s.recordingVoicemail.Store(v) }

// RecordingVoicemail reports whether voicemail capture is open.
func (s *State) RecordingVoicemail() bool { return s.recordingVoicemail.Load() }
