package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autovox/autovox/internal/api"
	"github.com/autovox/autovox/internal/call"
	"github.com/autovox/autovox/internal/config"
	"github.com/autovox/autovox/internal/database"
	"github.com/autovox/autovox/internal/email"
	"github.com/autovox/autovox/internal/info"
	"github.com/autovox/autovox/internal/metrics"
	"github.com/autovox/autovox/internal/prompts"
	sipserver "github.com/autovox/autovox/internal/sip"
	"github.com/autovox/autovox/internal/speech"
	"github.com/autovox/autovox/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting autovox",
		"http_port", cfg.HTTPPort,
		"sip_port", cfg.SIPPort,
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := storage.New(cfg.DataDir, logger)
	if err != nil {
		slog.Error("failed to prepare data directories", "error", err)
		os.Exit(1)
	}
	if err := prompts.ExtractToDir(store.PromptsDir()); err != nil {
		slog.Error("failed to extract default prompts", "error", err)
		os.Exit(1)
	}

	menu, err := call.LoadMenu(cfg.MenuPath)
	if err != nil {
		slog.Error("failed to load menu", "path", cfg.MenuPath, "error", err)
		os.Exit(1)
	}
	slog.Info("menu loaded", "digits", menu.Digits())

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	store.StartCleanupTicker(appCtx, cfg.RecordingMaxDays, time.Hour)

	callLog := database.NewCallLogRepository(db)
	voicemail := database.NewVoicemailMessageRepository(db)
	registry := call.NewRegistry()
	statusHistory := api.NewStatusHistory(200)

	// Metrics: event counters plus scrape-time gauges.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewRecorder(promReg)
	promReg.MustRegister(metrics.NewCollector(registry, voicemail, time.Now()))

	// Optional collaborators degrade to spoken fallbacks when unset.
	var synth call.Synthesizer
	if cfg.TTSURL != "" {
		synth = speech.NewClient(cfg.TTSURL, logger)
	} else {
		slog.Warn("no tts-url configured, spoken reports are disabled")
	}

	var assistant call.Assistant
	if cfg.AssistantURL != "" {
		assistant = info.NewAssistantClient(cfg.AssistantURL, cfg.AssistantKey, logger)
	}

	// Voicemail messages always land in the database; email notification is
	// layered on top when SMTP is configured.
	var voicemailSink call.VoicemailSink = voicemail
	if cfg.SMTPConfigured() {
		sender := email.NewSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPTo,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			TLS:      cfg.SMTPTLS,
		}, logger)
		voicemailSink = &notifyingVoicemailSink{
			db:          voicemail,
			sender:      sender,
			attachAudio: cfg.SMTPAttachAudio,
			logger:      logger,
		}
		slog.Info("voicemail email notifications enabled", "to", cfg.SMTPTo)
	}

	providers := &info.Providers{
		WeatherClient: info.NewWeatherClient("", cfg.WeatherLat, cfg.WeatherLon, logger),
		NamedayClient: info.NewNamedayClient(cfg.NamedayURL, logger),
	}

	controller, err := call.NewController(call.Config{
		Registry:   registry,
		Menu:       menu,
		Prompts:    store,
		Recordings: store,
		Speech:     synth,
		Info:       providers,
		Assistant:  assistant,
		Notifier:   call.MultiNotifier{statusLogger(logger), statusHistory},
		CallLog:    callLog,
		Voicemail:  voicemailSink,
		Metrics:    recorder,
		Logger:     logger,

		RecordingEnabled:  cfg.RecordingEnabled,
		DebounceThreshold: time.Duration(cfg.DebounceMs) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.IdleTimeoutSecs) * time.Second,
		CaptureLimit:      time.Duration(cfg.CaptureLimitSecs) * time.Second,
	})
	if err != nil {
		slog.Error("failed to create call controller", "error", err)
		os.Exit(1)
	}

	sipSrv, err := sipserver.NewServer(cfg, controller, logger)
	if err != nil {
		slog.Error("failed to create sip server", "error", err)
		os.Exit(1)
	}
	if err := sipSrv.Start(appCtx); err != nil {
		slog.Error("failed to start sip server", "error", err)
		os.Exit(1)
	}

	handler, err := api.NewServer(cfg, registry, callLog, voicemail, statusHistory, promReg)
	if err != nil {
		slog.Error("failed to create api server", "error", err)
		os.Exit(1)
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down servers")

	// Deactivating the registry makes every call loop exit within one
	// pacing window; the SIP server then waits for their teardown.
	registry.DeactivateAll()
	sipSrv.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("autovox stopped")
}

// notifyingVoicemailSink stores each voicemail in the database, then sends an
// email notification. A failed email never fails the save.
type notifyingVoicemailSink struct {
	db          call.VoicemailSink
	sender      *email.Sender
	attachAudio bool
	logger      *slog.Logger
}

func (s *notifyingVoicemailSink) SaveVoicemail(ctx context.Context, callID, callerNumber, path string, duration time.Duration) error {
	if err := s.db.SaveVoicemail(ctx, callID, callerNumber, path, duration); err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := s.sender.Send(ctx, email.Notification{
			CallID:       callID,
			CallerNumber: callerNumber,
			Timestamp:    time.Now(),
			DurationSecs: int(duration.Seconds()),
			AudioFile:    path,
			AttachAudio:  s.attachAudio,
		})
		if err != nil {
			s.logger.Warn("voicemail email notification failed", "call_id", callID, "error", err)
		}
	}()
	return nil
}

// statusLogger mirrors call status events into the structured log.
func statusLogger(logger *slog.Logger) call.Notifier {
	events := logger.With("subsystem", "call-status")
	return call.NotifierFunc(func(ev call.StatusEvent) {
		events.Info("call status",
			"call_id", ev.CallID,
			"status", ev.StatusStr,
			"last_input", ev.LastInput,
			"active", ev.Active,
		)
	})
}
