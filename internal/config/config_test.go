package config

import (
	"log/slog"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SIPPort != 5060 {
		t.Errorf("SIPPort = %d, want 5060", cfg.SIPPort)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.DebounceMs != 200 {
		t.Errorf("DebounceMs = %d, want 200", cfg.DebounceMs)
	}
	if cfg.RecordingEnabled {
		t.Error("recording should default to disabled")
	}
}

func TestFlagOverrides(t *testing.T) {
	cfg, err := load([]string{
		"-sip-port", "5070",
		"-dtmf-debounce-ms", "150",
		"-recording-enabled",
		"-log-format", "json",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SIPPort != 5070 {
		t.Errorf("SIPPort = %d, want 5070", cfg.SIPPort)
	}
	if cfg.DebounceMs != 150 {
		t.Errorf("DebounceMs = %d, want 150", cfg.DebounceMs)
	}
	if !cfg.RecordingEnabled {
		t.Error("recording-enabled flag not applied")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOVOX_SIP_PORT", "5090")
	t.Setenv("AUTOVOX_TTS_URL", "http://tts.local:5002")
	t.Setenv("AUTOVOX_WEATHER_LAT", "52.52")

	cfg, err := load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SIPPort != 5090 {
		t.Errorf("SIPPort = %d, want 5090", cfg.SIPPort)
	}
	if cfg.TTSURL != "http://tts.local:5002" {
		t.Errorf("TTSURL = %q", cfg.TTSURL)
	}
	if cfg.WeatherLat != 52.52 {
		t.Errorf("WeatherLat = %v, want 52.52", cfg.WeatherLat)
	}
}

func TestFlagBeatsEnv(t *testing.T) {
	t.Setenv("AUTOVOX_SIP_PORT", "5090")

	cfg, err := load([]string{"-sip-port", "5070"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SIPPort != 5070 {
		t.Errorf("SIPPort = %d, want flag value 5070", cfg.SIPPort)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad sip port", []string{"-sip-port", "0"}},
		{"rtp range inverted", []string{"-rtp-port-min", "20000", "-rtp-port-max", "10000"}},
		{"odd rtp min", []string{"-rtp-port-min", "10001"}},
		{"bad log level", []string{"-log-level", "verbose"}},
		{"bad log format", []string{"-log-format", "xml"}},
		{"zero idle timeout", []string{"-menu-idle-secs", "0"}},
		{"huge debounce", []string{"-dtmf-debounce-ms", "10000"}},
		{"bad smtp tls", []string{"-smtp-tls", "ssl3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(tt.args); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestJWTSecretBytes(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Errorf("generated key length = %d, want 32", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("generated secret not stored back in config")
	}

	cfg = &Config{JWTSecret: "abcd"}
	if _, err := cfg.JWTSecretBytes(); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestSMTPConfigured(t *testing.T) {
	cfg, err := load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SMTPConfigured() {
		t.Error("smtp should be disabled by default")
	}

	cfg, err = load([]string{
		"-smtp-host", "mail.example.com",
		"-smtp-from", "autovox@example.com",
		"-smtp-to", "admin@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.SMTPConfigured() {
		t.Error("smtp should be enabled with host, from and to set")
	}
	if cfg.SMTPTLS != "starttls" {
		t.Errorf("SMTPTLS = %q, want starttls default", cfg.SMTPTLS)
	}
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		cfg := &Config{LogLevel: level}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
