package call

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/autovox/autovox/internal/media"
)

// fakeCall is an in-memory telephony.Call for driving the session.
type fakeCall struct {
	id string

	mu       sync.Mutex
	active   bool
	answered bool
	hangups  int
	windows  int

	onHangup func()
	onTone   func(symbol string, duration time.Duration)
	onMedia  func(payloadType int, payload []byte)
}

func newFakeCall(id string) *fakeCall {
	return &fakeCall{id: id, active: true}
}

func (f *fakeCall) ID() string { return f.id }

func (f *fakeCall) Caller() (string, string) { return "Alice", "1001" }

func (f *fakeCall) Answer(ctx context.Context) error {
	f.mu.Lock()
	f.answered = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCall) Hangup() error {
	f.mu.Lock()
	f.active = false
	f.hangups++
	f.mu.Unlock()
	return nil
}

func (f *fakeCall) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeCall) SendAudio(sampleCount int, payload []byte) error {
	f.mu.Lock()
	f.windows++
	f.mu.Unlock()
	return nil
}

func (f *fakeCall) OnHangup(fn func()) { f.onHangup = fn }

func (f *fakeCall) OnTone(fn func(string, time.Duration)) { f.onTone = fn }

func (f *fakeCall) OnMediaPacket(fn func(int, []byte)) { f.onMedia = fn }

// remoteHangup simulates the far end terminating the call.
func (f *fakeCall) remoteHangup() {
	f.mu.Lock()
	f.active = false
	fn := f.onHangup
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// dropLine simulates abrupt media loss: the leg dies without any hangup
// callback firing.
func (f *fakeCall) dropLine() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

func (f *fakeCall) answeredCount() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answered, f.hangups
}

type fakePrompts struct{ clips map[string][]byte }

func (f *fakePrompts) ReadPrompt(name string) ([]byte, error) {
	clip, ok := f.clips[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return clip, nil
}

type fakeRecordings struct {
	mu         sync.Mutex
	recordings map[string][]byte
	voicemails map[string][]byte
}

func newFakeRecordings() *fakeRecordings {
	return &fakeRecordings{
		recordings: make(map[string][]byte),
		voicemails: make(map[string][]byte),
	}
}

func (f *fakeRecordings) WriteRecording(callID string, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings[callID] = wav
	return "recordings/" + callID + ".wav", nil
}

func (f *fakeRecordings) WriteVoicemail(callID string, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voicemails[callID] = wav
	return "voicemail/" + callID + ".wav", nil
}

type fakeSpeech struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return media.EncodeWAV(make([]int16, media.WindowSamples)), nil
}

func (f *fakeSpeech) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeInfo struct{}

func (fakeInfo) Weather(ctx context.Context) (string, error) {
	return "Clear sky, 22 degrees.", nil
}

func (fakeInfo) Nameday(ctx context.Context, t time.Time) (string, error) {
	return "Today is the name day of Juraj.", nil
}

type fakeAssistant struct {
	mu          sync.Mutex
	transcripts int
}

func (f *fakeAssistant) Transcribe(ctx context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	f.transcripts++
	f.mu.Unlock()
	return "what are your opening hours", nil
}

func (f *fakeAssistant) Complete(ctx context.Context, prompt string) (string, error) {
	return "We are open from nine to five.", nil
}

type eventLog struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (l *eventLog) Notify(ev StatusEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) byStatus(s Status) []StatusEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []StatusEvent
	for _, ev := range l.events {
		if ev.Status == s {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) waitFor(t *testing.T, s Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(l.byStatus(s)) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event within %v", s, timeout)
}

func testController(t *testing.T, menu *Menu, events *eventLog, recs *fakeRecordings, speech *fakeSpeech, assistant *fakeAssistant) *Controller {
	t.Helper()
	greeting := media.EncodeWAV(make([]int16, media.WindowSamples))
	cfg := Config{
		Registry:         NewRegistry(),
		Menu:             menu,
		Prompts:          &fakePrompts{clips: map[string][]byte{PromptGreeting: greeting}},
		Recordings:       recs,
		Speech:           speech,
		Info:             fakeInfo{},
		Assistant:        assistant,
		Notifier:         events,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		RecordingEnabled: true,
		IdleTimeout:      2 * time.Second,
		CaptureLimit:     2 * time.Second,
	}
	c, err := NewController(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestHandleCall_EndToEnd(t *testing.T) {
	menu, err := ParseMenu([]byte(`{"7": {"action": "info"}}`))
	if err != nil {
		t.Fatal(err)
	}
	events := &eventLog{}
	recs := newFakeRecordings()
	speech := &fakeSpeech{}
	c := testController(t, menu, events, recs, speech, nil)

	fc := newFakeCall("abc")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()

	events.waitFor(t, StatusConnected, time.Second)
	fc.onTone("7", 60*time.Millisecond)
	events.waitFor(t, StatusInput, time.Second)

	// Let the info action synthesize and stream its reply.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(speech.spoken()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(speech.spoken()) == 0 {
		t.Fatal("info action never reached the synthesizer")
	}

	fc.remoteHangup()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after hangup")
	}

	if got := events.byStatus(StatusEnded); len(got) != 1 {
		t.Fatalf("got %d ended events, want exactly 1", len(got))
	}
	if c.cfg.Registry.Count() != 0 {
		t.Error("call still registered after teardown")
	}
	if answered, hangups := fc.answeredCount(); !answered || hangups == 0 {
		t.Errorf("answered=%v hangups=%d, want answered with local hangup", answered, hangups)
	}
	spoken := speech.spoken()[0]
	for _, want := range []string{"Clear sky", "The time is", "name day"} {
		if !strings.Contains(spoken, want) {
			t.Errorf("info text %q missing %q", spoken, want)
		}
	}
	if _, ok := recs.recordings["abc"]; !ok {
		t.Error("no mixed recording written at call end")
	}
}

func TestHandleCall_DuplicateRejected(t *testing.T) {
	events := &eventLog{}
	c := testController(t, DefaultMenu(), events, newFakeRecordings(), &fakeSpeech{}, nil)

	// First notification registers the id.
	if !c.cfg.Registry.Add("abc", NewState()) {
		t.Fatal("setup: could not register id")
	}

	fc := newFakeCall("abc")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("duplicate call not rejected promptly")
	}

	if answered, _ := fc.answeredCount(); answered {
		t.Error("duplicate call was answered")
	}
	if len(events.byStatus(StatusEnded)) != 0 {
		t.Error("duplicate call emitted status events")
	}
	if c.cfg.Registry.Count() != 1 {
		t.Error("duplicate handling disturbed the registry")
	}
}

func TestHandleCall_WatchdogDetectsDeadLeg(t *testing.T) {
	events := &eventLog{}
	c := testController(t, DefaultMenu(), events, newFakeRecordings(), &fakeSpeech{}, nil)

	fc := newFakeCall("dead-leg")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()

	events.waitFor(t, StatusConnected, time.Second)

	// The hangup callback never fires; only the liveness query reports the
	// leg dead. The loop must still exit within a few pacing windows.
	fc.dropLine()
	start := time.Now()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("watchdog did not end the session")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("teardown took %v after liveness loss", elapsed)
	}
	if len(events.byStatus(StatusEnded)) != 1 {
		t.Error("watchdog teardown did not emit exactly one ended event")
	}
}

func TestHandleCall_VoicemailFlow(t *testing.T) {
	menu, err := ParseMenu([]byte(`{"9": {"action": "voicemail"}}`))
	if err != nil {
		t.Fatal(err)
	}
	events := &eventLog{}
	recs := newFakeRecordings()
	c := testController(t, menu, events, recs, &fakeSpeech{}, nil)

	fc := newFakeCall("vm-1")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()

	events.waitFor(t, StatusConnected, time.Second)
	fc.onTone("9", 60*time.Millisecond)

	// Wait for capture mode to open, then deliver inbound voice payload.
	st, _ := c.cfg.Registry.Get("vm-1")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !st.RecordingVoicemail() {
		time.Sleep(5 * time.Millisecond)
	}
	if !st.RecordingVoicemail() {
		t.Fatal("voicemail capture never opened")
	}
	for i := 0; i < 5; i++ {
		fc.onMedia(media.PayloadPCMU, make([]byte, media.WindowSamples))
	}
	fc.onTone("#", 60*time.Millisecond)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		recs.mu.Lock()
		_, ok := recs.voicemails["vm-1"]
		recs.mu.Unlock()
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	fc.remoteHangup()
	<-done

	recs.mu.Lock()
	wav, ok := recs.voicemails["vm-1"]
	recs.mu.Unlock()
	if !ok {
		t.Fatal("voicemail not persisted")
	}
	// 5 windows of companded input become 5*160 samples of 16-bit PCM.
	if want := 44 + 2*5*media.WindowSamples; len(wav) != want {
		t.Errorf("voicemail file is %d bytes, want %d", len(wav), want)
	}
}

func TestHandleCall_AssistantFlow(t *testing.T) {
	menu, err := ParseMenu([]byte(`{"8": {"action": "assistant"}}`))
	if err != nil {
		t.Fatal(err)
	}
	events := &eventLog{}
	speech := &fakeSpeech{}
	assistant := &fakeAssistant{}
	c := testController(t, menu, events, newFakeRecordings(), speech, assistant)

	fc := newFakeCall("asst-1")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()

	events.waitFor(t, StatusConnected, time.Second)
	fc.onTone("8", 60*time.Millisecond)

	st, _ := c.cfg.Registry.Get("asst-1")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !st.RecordingAssistant() {
		time.Sleep(5 * time.Millisecond)
	}
	if !st.RecordingAssistant() {
		t.Fatal("assistant capture never opened")
	}
	fc.onMedia(media.PayloadPCMU, make([]byte, media.WindowSamples))
	fc.onTone("#", 60*time.Millisecond)

	// The reply must reach the synthesizer.
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hasText(speech.spoken(), "nine to five") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !hasText(speech.spoken(), "nine to five") {
		t.Fatalf("assistant reply never spoken, got %v", speech.spoken())
	}

	fc.remoteHangup()
	<-done
}

func TestHandleCall_MediaPacketDigitPath(t *testing.T) {
	events := &eventLog{}
	c := testController(t, DefaultMenu(), events, newFakeRecordings(), &fakeSpeech{}, nil)

	fc := newFakeCall("rfc2833")
	done := make(chan struct{})
	go func() {
		c.HandleCall(context.Background(), fc)
		close(done)
	}()

	events.waitFor(t, StatusConnected, time.Second)

	// Telephone-event payload: digit 5, end bit set.
	fc.onMedia(media.PayloadTelephoneEvent, []byte{5, 0x8A, 0x01, 0x40})
	events.waitFor(t, StatusInput, time.Second)

	if got := events.byStatus(StatusInput); got[0].LastInput != "5" {
		t.Errorf("input event digit = %q, want %q", got[0].LastInput, "5")
	}

	fc.remoteHangup()
	<-done
}

func hasText(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
