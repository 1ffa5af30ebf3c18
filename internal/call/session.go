package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/autovox/autovox/internal/media"
	"github.com/autovox/autovox/internal/telephony"
)

// Default prompt clip names looked up in the prompt store. A missing clip
// is logged and skipped, never fatal.
const (
	PromptGreeting  = "greeting.wav"
	PromptAssistant = "assistant.wav"
	PromptVoicemail = "voicemail.wav"
	PromptSaved     = "saved.wav"
	PromptFallback  = "unavailable.wav"
)

// fallbackPhrase is spoken when an info or assistant collaborator fails.
const fallbackPhrase = "I am sorry, that service is not available right now."

// PromptStore provides named audio clips.
type PromptStore interface {
	ReadPrompt(name string) ([]byte, error)
}

// RecordingStore persists call recordings and voicemail messages, returning
// the stored path.
type RecordingStore interface {
	WriteRecording(callID string, wav []byte) (string, error)
	WriteVoicemail(callID string, wav []byte) (string, error)
}

// Synthesizer turns text into 8 kHz mono 16-bit PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// InfoProvider serves the spoken info report's data points.
type InfoProvider interface {
	Weather(ctx context.Context) (string, error)
	Nameday(ctx context.Context, t time.Time) (string, error)
}

// Assistant runs the record-transcribe-complete pipeline's language steps.
type Assistant interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// LogEntry is the call detail record written at call end.
type LogEntry struct {
	CallID        string
	CallerName    string
	CallerNumber  string
	StartedAt     time.Time
	EndedAt       time.Time
	Digits        string
	RecordingPath string
	VoicemailPath string
}

// CallLog persists call detail records.
type CallLog interface {
	Record(ctx context.Context, entry LogEntry) error
}

// VoicemailSink records voicemail metadata after the audio is stored.
type VoicemailSink interface {
	SaveVoicemail(ctx context.Context, callID, callerNumber, path string, duration time.Duration) error
}

// Metrics receives counters from the session. Implemented by the metrics
// package; a nil value disables reporting.
type Metrics interface {
	CallStarted()
	CallEnded(duration time.Duration)
	DigitAccepted(source string)
	RecordingWritten(bytes int)
	VoicemailRecorded()
}

// Config wires the session controller's collaborators and tunables.
type Config struct {
	Registry   *Registry
	Menu       *Menu
	Prompts    PromptStore
	Recordings RecordingStore
	Speech     Synthesizer
	Info       InfoProvider
	Assistant  Assistant
	Notifier   Notifier
	CallLog    CallLog
	Voicemail  VoicemailSink
	Metrics    Metrics
	Logger     *slog.Logger

	RecordingEnabled  bool
	DebounceThreshold time.Duration
	// IdleTimeout ends the call when the menu loop sees no input for this
	// long. Zero selects the default.
	IdleTimeout time.Duration
	// CaptureLimit bounds one assistant or voicemail recording. Zero
	// selects the default.
	CaptureLimit time.Duration
}

const (
	defaultIdleTimeout  = 60 * time.Second
	defaultCaptureLimit = 60 * time.Second
)

// Controller handles inbound calls. One HandleCall invocation owns one
// call end-to-end on its own goroutine; calls never block each other.
type Controller struct {
	cfg     Config
	logger  *slog.Logger
	started time.Time
}

// NewController validates the wiring and returns a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session controller: registry is required")
	}
	if cfg.Menu == nil {
		cfg.Menu = DefaultMenu()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.CaptureLimit <= 0 {
		cfg.CaptureLimit = defaultCaptureLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		logger:  cfg.Logger.With("subsystem", "session"),
		started: time.Now(),
	}, nil
}

// HandleCall runs the full lifecycle for one inbound call: registry
// admission, callback wiring, answer, greeting, menu loop and the single
// terminate path. It implements telephony.Handler.
func (c *Controller) HandleCall(ctx context.Context, tc telephony.Call) {
	id := tc.ID()
	name, number := tc.Caller()
	logger := c.logger.With("call_id", id, "caller", number)

	st := NewState()
	if !c.cfg.Registry.Add(id, st) {
		logger.Warn("duplicate incoming call ignored")
		return
	}

	startedAt := time.Now()
	rec := media.NewCallRecording(c.cfg.RecordingEnabled)
	deb := media.NewDebouncer(c.cfg.DebounceThreshold, logger)

	sess := &session{
		ctrl:       c,
		call:       tc,
		state:      st,
		rec:        rec,
		player:     media.NewPlayer(tc, logger),
		logger:     logger,
		id:         id,
		caller:     number,
		callerName: name,
		startedAt:  startedAt,
	}

	// Callbacks are wired before Answer so no early event is lost. All
	// three run concurrently with the session loop.
	tc.OnHangup(func() {
		logger.Info("remote hangup")
		st.Deactivate()
	})
	tc.OnTone(func(symbol string, duration time.Duration) {
		sym, err := media.NormalizeSymbol(symbol)
		if err != nil {
			logger.Debug("unrecognized tone ignored", "tone", symbol)
			return
		}
		sess.acceptDigit(deb, media.SourceSignaling, sym)
	})
	tc.OnMediaPacket(func(payloadType int, payload []byte) {
		switch payloadType {
		case media.PayloadPCMU:
			rec.AppendInbound(payload)
		case media.PayloadTelephoneEvent:
			ev := media.ParseDTMFEvent(payload)
			if ev == nil || !ev.End {
				return
			}
			if sym := ev.Symbol(); sym != 0 {
				sess.acceptDigit(deb, media.SourceMedia, sym)
			}
		}
	})

	defer sess.terminate(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in call session", "panic", r)
		}
	}()

	c.notify(StatusEvent{CallID: id, Status: StatusRinging, Active: true, Time: time.Now()})
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CallStarted()
	}

	if err := tc.Answer(ctx); err != nil {
		logger.Error("answer failed", "error", err)
		return
	}
	logger.Info("call connected", "caller_name", name)
	c.notify(StatusEvent{CallID: id, Status: StatusConnected, Active: true, Time: time.Now()})

	sess.playPrompt(ctx, PromptGreeting)
	sess.menuLoop(ctx)
}

func (c *Controller) notify(ev StatusEvent) {
	if c.cfg.Notifier == nil {
		return
	}
	ev.StatusStr = ev.Status.String()
	c.cfg.Notifier.Notify(ev)
}

// session holds the per-call working set of one HandleCall invocation.
type session struct {
	ctrl       *Controller
	call       telephony.Call
	state      *State
	rec        *media.CallRecording
	player     *media.Player
	logger     *slog.Logger
	id         string
	caller     string
	callerName string
	startedAt  time.Time

	mu            sync.Mutex
	digitsEntered []byte
	voicemailPath string
	recordingPath string

	terminated sync.Once
}

// acceptDigit runs a candidate symbol through the debouncer and, when
// accepted, queues it and publishes an input status event.
func (s *session) acceptDigit(deb *media.Debouncer, src media.DigitSource, sym byte) {
	if !deb.Accept(src, sym) {
		return
	}
	s.state.PushDigit(sym)
	s.mu.Lock()
	s.digitsEntered = append(s.digitsEntered, sym)
	s.mu.Unlock()

	if m := s.ctrl.cfg.Metrics; m != nil {
		m.DigitAccepted(src.String())
	}
	s.ctrl.notify(StatusEvent{
		CallID:    s.id,
		Status:    StatusInput,
		LastInput: string(sym),
		Active:    s.state.Active(),
		Time:      time.Now(),
	})
}

// live reports whether the session should keep running. The signaling
// stack's liveness query backs up its hangup callback, so a dropped BYE or
// dead media path still ends the loop within one pacing window.
func (s *session) live(ctx context.Context) bool {
	return ctx.Err() == nil && s.state.Active() && s.call.Active()
}

// interrupt is the playback interrupt predicate: stop on termination or as
// soon as a fresh digit is waiting.
func (s *session) interrupt(ctx context.Context) media.Interrupt {
	return func() bool {
		return !s.live(ctx) || s.state.HasDigit()
	}
}

// menuLoop is the resting state of a connected call. Each iteration either
// consumes one digit and dispatches its action, or sends one silence
// window, which both keeps the media stream alive and paces the loop at
// the watchdog's check rate.
func (s *session) menuLoop(ctx context.Context) {
	idleDeadline := time.Now().Add(s.ctrl.cfg.IdleTimeout)

	for s.live(ctx) {
		if d, ok := s.state.PopDigit(); ok {
			s.dispatch(ctx, d)
			idleDeadline = time.Now().Add(s.ctrl.cfg.IdleTimeout)
			continue
		}
		if time.Now().After(idleDeadline) {
			s.logger.Info("menu idle timeout")
			return
		}
		if err := s.player.SendSilence(ctx, s.rec, func() bool { return !s.live(ctx) || s.state.HasDigit() }); err != nil {
			s.logger.Warn("silence send failed", "error", err)
			return
		}
	}
}

// dispatch resolves one digit against the configured menu and runs the
// action. Action failures degrade to a spoken fallback or a no-op; they
// never end the call.
func (s *session) dispatch(ctx context.Context, digit byte) {
	action, ok := s.ctrl.cfg.Menu.Resolve(digit)
	if !ok {
		s.logger.Debug("unmapped digit", "digit", string(digit))
		return
	}
	s.logger.Info("menu action", "digit", string(digit), "action", string(action.Kind))

	switch action.Kind {
	case ActionPlay:
		s.playPrompt(ctx, action.File)
	case ActionInfo:
		s.speak(ctx, s.infoReport(ctx))
	case ActionStatus:
		s.speak(ctx, s.statusReport())
	case ActionAssistant:
		s.runAssistant(ctx)
	case ActionVoicemail:
		s.runVoicemail(ctx)
	case ActionNone:
	}
}

// playPrompt streams a named clip from the prompt store. A missing or
// unreadable clip is logged and skipped.
func (s *session) playPrompt(ctx context.Context, name string) {
	if s.ctrl.cfg.Prompts == nil || name == "" {
		return
	}
	clip, err := s.ctrl.cfg.Prompts.ReadPrompt(name)
	if err != nil {
		s.logger.Warn("prompt unavailable", "prompt", name, "error", err)
		return
	}
	res, err := s.player.PlayPCM(ctx, clip, s.rec, s.interrupt(ctx))
	if err != nil {
		s.logger.Warn("prompt playback failed", "prompt", name, "error", err)
		return
	}
	s.logger.Debug("prompt played",
		"prompt", name,
		"windows", res.WindowsSent,
		"interrupted", res.Interrupted,
	)
}

// speak synthesizes text and streams it. When synthesis fails, the stored
// fallback clip is played instead.
func (s *session) speak(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if s.ctrl.cfg.Speech == nil {
		s.playPrompt(ctx, PromptFallback)
		return
	}
	pcm, err := s.ctrl.cfg.Speech.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("synthesis failed", "error", err)
		s.playPrompt(ctx, PromptFallback)
		return
	}
	if _, err := s.player.PlayPCM(ctx, pcm, s.rec, s.interrupt(ctx)); err != nil {
		s.logger.Warn("speech playback failed", "error", err)
	}
}

// infoReport builds the spoken info text: weather, current time, name day.
// Each data point degrades independently.
func (s *session) infoReport(ctx context.Context) string {
	var parts []string
	now := time.Now()

	if s.ctrl.cfg.Info != nil {
		if w, err := s.ctrl.cfg.Info.Weather(ctx); err != nil {
			s.logger.Warn("weather lookup failed", "error", err)
			parts = append(parts, fallbackPhrase)
		} else {
			parts = append(parts, w)
		}
	}

	parts = append(parts, fmt.Sprintf("The time is %s.", now.Format("15:04")))

	if s.ctrl.cfg.Info != nil {
		if nd, err := s.ctrl.cfg.Info.Nameday(ctx, now); err != nil {
			s.logger.Warn("nameday lookup failed", "error", err)
		} else if nd != "" {
			parts = append(parts, nd)
		}
	}
	return strings.Join(parts, " ")
}

// statusReport builds the spoken system status text.
func (s *session) statusReport() string {
	uptime := time.Since(s.ctrl.started).Round(time.Minute)
	return fmt.Sprintf("System is running. Uptime %s. %d active calls.",
		uptime, s.ctrl.cfg.Registry.Count())
}

// runAssistant plays the prompt, captures caller speech until pound or the
// capture limit, then transcribes, completes and speaks the reply.
func (s *session) runAssistant(ctx context.Context) {
	if s.ctrl.cfg.Assistant == nil {
		s.speak(ctx, fallbackPhrase)
		return
	}
	s.playPrompt(ctx, PromptAssistant)

	captured := s.capture(ctx, s.state.SetRecordingAssistant)
	if len(captured) == 0 || !s.live(ctx) {
		return
	}
	wav := media.EncodeWAV(media.DecodeBuffer(captured))

	question, err := s.ctrl.cfg.Assistant.Transcribe(ctx, wav)
	if err != nil {
		s.logger.Warn("transcription failed", "error", err)
		s.speak(ctx, fallbackPhrase)
		return
	}
	s.logger.Info("assistant question", "text", question)

	reply, err := s.ctrl.cfg.Assistant.Complete(ctx, question)
	if err != nil {
		s.logger.Warn("assistant completion failed", "error", err)
		s.speak(ctx, fallbackPhrase)
		return
	}
	s.speak(ctx, reply)
}

// runVoicemail plays the prompt, captures a message until pound or the
// capture limit, and persists it with its metadata.
func (s *session) runVoicemail(ctx context.Context) {
	if s.ctrl.cfg.Recordings == nil {
		s.speak(ctx, fallbackPhrase)
		return
	}
	s.playPrompt(ctx, PromptVoicemail)

	captured := s.capture(ctx, s.state.SetRecordingVoicemail)
	if len(captured) == 0 {
		return
	}
	duration := time.Duration(len(captured)) * time.Second / media.SampleRate

	wav := media.EncodeWAV(media.DecodeBuffer(captured))
	path, err := s.ctrl.cfg.Recordings.WriteVoicemail(s.id, wav)
	if err != nil {
		s.logger.Error("voicemail write failed", "error", err)
		s.speak(ctx, fallbackPhrase)
		return
	}
	s.mu.Lock()
	s.voicemailPath = path
	s.mu.Unlock()

	if vm := s.ctrl.cfg.Voicemail; vm != nil {
		if err := vm.SaveVoicemail(ctx, s.id, s.caller, path, duration); err != nil {
			s.logger.Error("voicemail metadata write failed", "error", err)
		}
	}
	if m := s.ctrl.cfg.Metrics; m != nil {
		m.VoicemailRecorded()
	}
	s.logger.Info("voicemail recorded", "path", path, "duration", duration)

	if s.live(ctx) {
		s.playPrompt(ctx, PromptSaved)
	}
}

// capture opens inbound capture and holds the line with silence windows
// until the caller presses pound, the capture limit expires, or the call
// ends. Returns the captured companded bytes.
func (s *session) capture(ctx context.Context, setMode func(bool)) []byte {
	s.rec.StartCapture()
	setMode(true)
	defer setMode(false)

	deadline := time.Now().Add(s.ctrl.cfg.CaptureLimit)
	for s.live(ctx) && time.Now().Before(deadline) {
		if d, ok := s.state.PopDigit(); ok {
			if d == '#' {
				break
			}
			// other digits during capture are discarded
			continue
		}
		if err := s.player.SendSilence(ctx, s.rec, func() bool { return !s.live(ctx) || s.state.HasDigit() }); err != nil {
			break
		}
	}
	return s.rec.StopCapture()
}

// terminate is the single finalization path, entered exactly once from any
// state. Hangup, unregister, recording flush, call log and the terminal
// status event each run even if a previous step fails.
func (s *session) terminate(ctx context.Context) {
	s.terminated.Do(func() {
		s.state.Deactivate()
		endedAt := time.Now()

		if err := s.call.Hangup(); err != nil {
			s.logger.Warn("hangup failed", "error", err)
		}

		s.ctrl.cfg.Registry.Remove(s.id)

		if mix := s.rec.Mixdown(); mix != nil && s.ctrl.cfg.Recordings != nil {
			path, err := s.ctrl.cfg.Recordings.WriteRecording(s.id, mix)
			if err != nil {
				s.logger.Error("recording write failed", "error", err)
			} else {
				s.mu.Lock()
				s.recordingPath = path
				s.mu.Unlock()
				if m := s.ctrl.cfg.Metrics; m != nil {
					m.RecordingWritten(len(mix))
				}
				s.logger.Info("recording written", "path", path, "bytes", len(mix))
			}
		}

		if cl := s.ctrl.cfg.CallLog; cl != nil {
			s.mu.Lock()
			entry := LogEntry{
				CallID:        s.id,
				CallerName:    s.callerName,
				CallerNumber:  s.caller,
				StartedAt:     s.startedAt,
				EndedAt:       endedAt,
				Digits:        string(s.digitsEntered),
				RecordingPath: s.recordingPath,
				VoicemailPath: s.voicemailPath,
			}
			s.mu.Unlock()
			// terminate may run during shutdown; do not inherit a
			// cancelled call context for the final write.
			logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := cl.Record(logCtx, entry); err != nil {
				s.logger.Error("call log write failed", "error", err)
			}
		}

		if m := s.ctrl.cfg.Metrics; m != nil {
			m.CallEnded(endedAt.Sub(s.startedAt))
		}
		s.ctrl.notify(StatusEvent{CallID: s.id, Status: StatusEnded, Active: false, Time: endedAt})
		s.logger.Info("call ended", "duration", endedAt.Sub(s.startedAt).Round(time.Millisecond))
	})
}
