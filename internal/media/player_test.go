package media

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autovox/autovox/internal/codec"
)

// recordingSink captures every SendAudio call for assertions.
type recordingSink struct {
	frames [][]byte
	counts []int
}

func (s *recordingSink) SendAudio(sampleCount int, payload []byte) error {
	frame := make([]byte, len(payload))
	copy(frame, payload)
	s.frames = append(s.frames, frame)
	s.counts = append(s.counts, sampleCount)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pcmClip builds a headerless clip of numWindows complete windows filled
// with a constant sample value.
func pcmClip(numWindows int, sample int16) []byte {
	data := make([]byte, numWindows*WindowBytes)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(sample))
	}
	return data
}

func TestPlayPCM_SendsOneFramePerWindow(t *testing.T) {
	const windows = 5
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	start := time.Now()
	res, err := p.PlayPCM(context.Background(), pcmClip(windows, 1000), nil, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatal(err)
	}
	if res.WindowsSent != windows {
		t.Errorf("WindowsSent = %d, want %d", res.WindowsSent, windows)
	}
	if len(sink.frames) != windows {
		t.Fatalf("sink received %d frames, want %d", len(sink.frames), windows)
	}
	for i, frame := range sink.frames {
		if len(frame) != WindowSamples {
			t.Errorf("frame %d has %d bytes, want %d", i, len(frame), WindowSamples)
		}
		if sink.counts[i] != WindowSamples {
			t.Errorf("frame %d sample count = %d, want %d", i, sink.counts[i], WindowSamples)
		}
	}
	// Real-time pacing: total run time must cover the clip duration.
	if min := time.Duration(windows) * WindowDuration; elapsed < min {
		t.Errorf("playback took %v, want at least %v", elapsed, min)
	}
}

func TestPlayPCM_CompandsInput(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	const sample = int16(1000)
	if _, err := p.PlayPCM(context.Background(), pcmClip(1, sample), nil, nil); err != nil {
		t.Fatal(err)
	}

	want := codec.Encode(sample)
	for i, b := range sink.frames[0] {
		if b != want {
			t.Fatalf("frame byte %d = %#x, want %#x", i, b, want)
		}
	}
}

func TestPlayPCM_SkipsWAVHeader(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	samples := make([]int16, 2*WindowSamples)
	for i := range samples {
		samples[i] = 500
	}
	clip := EncodeWAV(samples)

	res, err := p.PlayPCM(context.Background(), clip, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.WindowsSent != 2 {
		t.Errorf("WindowsSent = %d, want 2 (header must not be decoded as audio)", res.WindowsSent)
	}
	want := codec.Encode(500)
	if sink.frames[0][0] != want {
		t.Errorf("first payload byte = %#x, want %#x", sink.frames[0][0], want)
	}
}

func TestPlayPCM_DiscardsPartialFinalWindow(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	// Two full windows plus a half window of trailing samples.
	data := pcmClip(2, 200)
	data = append(data, pcmClip(1, 200)[:WindowBytes/2]...)

	res, err := p.PlayPCM(context.Background(), data, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.WindowsSent != 2 {
		t.Errorf("WindowsSent = %d, want 2 (partial window must be discarded)", res.WindowsSent)
	}
}

func TestPlayPCM_UndersizedInputIsNoop(t *testing.T) {
	for _, size := range []int{0, 1, WindowBytes - 1} {
		sink := &recordingSink{}
		p := NewPlayer(sink, testLogger())

		res, err := p.PlayPCM(context.Background(), make([]byte, size), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.WindowsSent != 0 || len(sink.frames) != 0 {
			t.Errorf("input size %d: sent %d windows, want 0", size, res.WindowsSent)
		}
	}
}

func TestPlayPCM_InterruptStopsBeforeNextWindow(t *testing.T) {
	const stopAfter = 2
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	var sent atomic.Int32
	countingSink := &interruptSink{inner: sink, sent: &sent}
	p.sink = countingSink

	interrupt := func() bool { return sent.Load() >= stopAfter }

	res, err := p.PlayPCM(context.Background(), pcmClip(10, 300), nil, interrupt)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Interrupted {
		t.Error("expected Interrupted=true")
	}
	if res.WindowsSent != stopAfter {
		t.Errorf("WindowsSent = %d, want %d", res.WindowsSent, stopAfter)
	}
}

func TestPlayPCM_ContextCancelStops(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.PlayPCM(ctx, pcmClip(10, 300), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Interrupted {
		t.Error("expected Interrupted=true for cancelled context")
	}
	if res.WindowsSent != 0 {
		t.Errorf("WindowsSent = %d, want 0", res.WindowsSent)
	}
}

func TestPlayPCM_AppendsOutboundRecording(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())
	rec := NewCallRecording(true)

	const windows = 3
	if _, err := p.PlayPCM(context.Background(), pcmClip(windows, 700), rec, nil); err != nil {
		t.Fatal(err)
	}

	_, outBytes := rec.Sizes()
	if want := windows * WindowSamples; outBytes != want {
		t.Errorf("outbound recording has %d bytes, want %d", outBytes, want)
	}
}

func TestSendSilence_FrameContent(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, testLogger())

	if err := p.SendSilence(context.Background(), nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sink.frames))
	}
	for i, b := range sink.frames[0] {
		if b != codec.SilenceByte {
			t.Fatalf("silence byte %d = %#x, want %#x", i, b, codec.SilenceByte)
		}
	}
}

// interruptSink counts sends so the interrupt predicate can trigger after a
// fixed number of windows.
type interruptSink struct {
	inner *recordingSink
	sent  *atomic.Int32
}

func (s *interruptSink) SendAudio(sampleCount int, payload []byte) error {
	err := s.inner.SendAudio(sampleCount, payload)
	s.sent.Add(1)
	return err
}
