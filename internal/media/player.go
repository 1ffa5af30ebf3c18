package media

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/autovox/autovox/internal/codec"
)

const (
	// WindowSamples is the number of samples per pacing window.
	// At 8 kHz with 20ms windows, each window carries 160 samples.
	WindowSamples = 160

	// WindowBytes is the raw size of one window of 16-bit linear PCM input.
	WindowBytes = WindowSamples * 2

	// WindowDuration is the wall-clock duration of one window.
	WindowDuration = 20 * time.Millisecond

	// interruptGranularity bounds how long a pacing wait may run before the
	// interrupt predicate is re-checked. Keeps digit and hangup latency to a
	// few milliseconds even inside a long clip.
	interruptGranularity = 5 * time.Millisecond
)

// AudioSink receives companded audio windows for transmission to the far end.
// Implemented by the telephony stack's media session.
type AudioSink interface {
	SendAudio(sampleCount int, payload []byte) error
}

// Interrupt is polled before each window and during pacing waits. Returning
// true aborts playback immediately.
type Interrupt func() bool

// PlayResult holds the outcome of a playback operation.
type PlayResult struct {
	// WindowsSent is the number of 20ms windows transmitted.
	WindowsSent int
	// Duration is the actual wall-clock playback time.
	Duration time.Duration
	// Interrupted is true if the interrupt predicate or context ended
	// playback before the clip was fully sent.
	Interrupted bool
}

// Player streams linear PCM audio to an AudioSink at the real-time cadence
// the far end expects. The source may be produced arbitrarily fast (a file
// read, a TTS response); the player alone decides when each window leaves.
//
// Pacing uses absolute deadlines from a start timestamp taken once per
// invocation, so per-window processing jitter never accumulates into drift.
type Player struct {
	sink   AudioSink
	logger *slog.Logger
}

// NewPlayer creates a player that sends companded windows to the given sink.
func NewPlayer(sink AudioSink, logger *slog.Logger) *Player {
	return &Player{
		sink:   sink,
		logger: logger.With("subsystem", "audio-player"),
	}
}

// PlayPCM streams a clip of 16-bit linear mono 8 kHz PCM. A leading
// RIFF/WAVE header, if present, is detected and skipped. Each complete
// 320-byte window is companded to u-law, appended to rec's outbound buffer
// when recording, handed to the sink, and then held until its wall-clock
// deadline. A trailing partial window is discarded rather than zero-padded.
// Zero-length or undersized input is a no-op.
func (p *Player) PlayPCM(ctx context.Context, pcm []byte, rec *CallRecording, interrupt Interrupt) (*PlayResult, error) {
	data := TrimWAVHeader(pcm)
	windows := len(data) / WindowBytes
	if windows == 0 {
		return &PlayResult{}, nil
	}

	frame := make([]byte, WindowSamples)
	start := time.Now()
	sent := 0

	for w := 0; w < windows; w++ {
		if interrupted(ctx, interrupt) {
			p.logger.Debug("playback interrupted",
				"windows_sent", sent,
				"windows_total", windows,
			)
			return &PlayResult{WindowsSent: sent, Duration: time.Since(start), Interrupted: true}, nil
		}

		raw := data[w*WindowBytes : (w+1)*WindowBytes]
		for i := 0; i < WindowSamples; i++ {
			sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			frame[i] = codec.Encode(sample)
		}

		if rec != nil {
			rec.AppendOutbound(frame)
		}

		if err := p.sink.SendAudio(WindowSamples, frame); err != nil {
			return &PlayResult{WindowsSent: sent, Duration: time.Since(start)}, err
		}
		sent++

		// Hold until this window's absolute deadline. The deadline is
		// windowIndex*WindowDuration from the pacing start, not a fixed
		// sleep after the send, so local jitter does not drift.
		if p.waitUntil(ctx, start.Add(time.Duration(sent)*WindowDuration), interrupt) {
			return &PlayResult{WindowsSent: sent, Duration: time.Since(start), Interrupted: true}, nil
		}
	}

	return &PlayResult{WindowsSent: sent, Duration: time.Since(start)}, nil
}

// SendSilence transmits one window of silence and holds for the window
// cadence. Used by the menu loop between prompts so the far end hears a
// continuous stream and the loop ticks at the pacing rate.
func (p *Player) SendSilence(ctx context.Context, rec *CallRecording, interrupt Interrupt) error {
	frame := make([]byte, WindowSamples)
	for i := range frame {
		frame[i] = codec.SilenceByte
	}

	if rec != nil {
		rec.AppendOutbound(frame)
	}
	if err := p.sink.SendAudio(WindowSamples, frame); err != nil {
		return err
	}
	p.waitUntil(ctx, time.Now().Add(WindowDuration), interrupt)
	return nil
}

// waitUntil sleeps in short slices until the deadline, re-checking the
// interrupt predicate between slices. Returns true if interrupted.
func (p *Player) waitUntil(ctx context.Context, deadline time.Time, interrupt Interrupt) bool {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if interrupted(ctx, interrupt) {
			return true
		}
		if remaining > interruptGranularity {
			remaining = interruptGranularity
		}
		time.Sleep(remaining)
	}
}

// interrupted reports whether the context is done or the predicate fired.
func interrupted(ctx context.Context, interrupt Interrupt) bool {
	if ctx.Err() != nil {
		return true
	}
	return interrupt != nil && interrupt()
}
