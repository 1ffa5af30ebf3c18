package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the Autovox server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir    string
	HTTPPort   int
	SIPPort    int
	RTPPortMin int
	RTPPortMax int
	ExternalIP string // public IP advertised in SDP (auto-detected if empty)
	LogLevel   string
	LogFormat  string // log output format: "text" or "json"

	MenuPath         string // JSON menu definition; built-in defaults if empty
	RecordingEnabled bool
	RecordingMaxDays int // recordings older than this are removed; 0 disables
	DebounceMs       int // DTMF debounce window in milliseconds
	IdleTimeoutSecs  int // hang up after this much menu inactivity
	CaptureLimitSecs int // maximum length of a voicemail or assistant capture

	TTSURL       string  // speech synthesis service base URL
	WeatherLat   float64 // coordinates for the weather report
	WeatherLon   float64
	NamedayURL   string // name day lookup service; omitted from reports if empty
	AssistantURL string // OpenAI-compatible API base URL
	AssistantKey string

	JWTSecret         string // hex-encoded 32-byte secret for admin API JWT signing
	AdminPasswordHash string // argon2id hash of the admin password

	SMTPHost        string // SMTP server for voicemail notifications (disabled if empty)
	SMTPPort        string
	SMTPFrom        string
	SMTPTo          string
	SMTPUser        string
	SMTPPass        string
	SMTPTLS         string // "none", "starttls", "tls"
	SMTPAttachAudio bool   // attach the voicemail WAV to notification emails
}

// defaults
const (
	defaultDataDir     = "./data"
	defaultHTTPPort    = 8080
	defaultSIPPort     = 5060
	defaultRTPPortMin  = 10000
	defaultRTPPortMax  = 20000
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultDebounceMs  = 200
	defaultIdleSecs    = 60
	defaultCaptureSecs = 60
	defaultWeatherLat  = 48.1486
	defaultWeatherLon  = 17.1077
)

// envPrefix is the prefix for all Autovox environment variables.
const envPrefix = "AUTOVOX_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("autovox", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database, prompts and recordings")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.IntVar(&cfg.SIPPort, "sip-port", defaultSIPPort, "SIP UDP/TCP listen port")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum UDP port for RTP media")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum UDP port for RTP media")
	fs.StringVar(&cfg.ExternalIP, "external-ip", "", "public IP address advertised in SDP (auto-detected if empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.MenuPath, "menu-path", "", "path to the JSON menu definition (built-in menu if empty)")
	fs.BoolVar(&cfg.RecordingEnabled, "recording-enabled", false, "archive full-call recordings to disk")
	fs.IntVar(&cfg.RecordingMaxDays, "recording-max-days", 0, "remove recordings older than this many days (0 disables)")
	fs.IntVar(&cfg.DebounceMs, "dtmf-debounce-ms", defaultDebounceMs, "DTMF duplicate suppression window in milliseconds")
	fs.IntVar(&cfg.IdleTimeoutSecs, "menu-idle-secs", defaultIdleSecs, "hang up after this many seconds without menu input")
	fs.IntVar(&cfg.CaptureLimitSecs, "capture-limit-secs", defaultCaptureSecs, "maximum voicemail or assistant capture length in seconds")
	fs.StringVar(&cfg.TTSURL, "tts-url", "", "speech synthesis service base URL")
	fs.Float64Var(&cfg.WeatherLat, "weather-lat", defaultWeatherLat, "latitude for the weather report")
	fs.Float64Var(&cfg.WeatherLon, "weather-lon", defaultWeatherLon, "longitude for the weather report")
	fs.StringVar(&cfg.NamedayURL, "nameday-url", "", "name day lookup service base URL (optional)")
	fs.StringVar(&cfg.AssistantURL, "assistant-url", "", "OpenAI-compatible API base URL for the voice assistant")
	fs.StringVar(&cfg.AssistantKey, "assistant-key", "", "API key for the voice assistant service")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin API JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.AdminPasswordHash, "admin-password-hash", "", "argon2id hash of the admin password")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", "", "SMTP server for voicemail notification emails (disabled if empty)")
	fs.StringVar(&cfg.SMTPPort, "smtp-port", "587", "SMTP server port")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", "", "From address for notification emails")
	fs.StringVar(&cfg.SMTPTo, "smtp-to", "", "recipient address for notification emails")
	fs.StringVar(&cfg.SMTPUser, "smtp-user", "", "SMTP auth username")
	fs.StringVar(&cfg.SMTPPass, "smtp-pass", "", "SMTP auth password")
	fs.StringVar(&cfg.SMTPTLS, "smtp-tls", "starttls", "SMTP TLS mode (none, starttls, tls)")
	fs.BoolVar(&cfg.SMTPAttachAudio, "smtp-attach-audio", true, "attach the voicemail WAV to notification emails")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":            envPrefix + "DATA_DIR",
		"http-port":           envPrefix + "HTTP_PORT",
		"sip-port":            envPrefix + "SIP_PORT",
		"rtp-port-min":        envPrefix + "RTP_PORT_MIN",
		"rtp-port-max":        envPrefix + "RTP_PORT_MAX",
		"external-ip":         envPrefix + "EXTERNAL_IP",
		"log-level":           envPrefix + "LOG_LEVEL",
		"log-format":          envPrefix + "LOG_FORMAT",
		"menu-path":           envPrefix + "MENU_PATH",
		"recording-enabled":   envPrefix + "RECORDING_ENABLED",
		"recording-max-days":  envPrefix + "RECORDING_MAX_DAYS",
		"dtmf-debounce-ms":    envPrefix + "DTMF_DEBOUNCE_MS",
		"menu-idle-secs":      envPrefix + "MENU_IDLE_SECS",
		"capture-limit-secs":  envPrefix + "CAPTURE_LIMIT_SECS",
		"tts-url":             envPrefix + "TTS_URL",
		"weather-lat":         envPrefix + "WEATHER_LAT",
		"weather-lon":         envPrefix + "WEATHER_LON",
		"nameday-url":         envPrefix + "NAMEDAY_URL",
		"assistant-url":       envPrefix + "ASSISTANT_URL",
		"assistant-key":       envPrefix + "ASSISTANT_KEY",
		"jwt-secret":          envPrefix + "JWT_SECRET",
		"admin-password-hash": envPrefix + "ADMIN_PASSWORD_HASH",
		"smtp-host":           envPrefix + "SMTP_HOST",
		"smtp-port":           envPrefix + "SMTP_PORT",
		"smtp-from":           envPrefix + "SMTP_FROM",
		"smtp-to":             envPrefix + "SMTP_TO",
		"smtp-user":           envPrefix + "SMTP_USER",
		"smtp-pass":           envPrefix + "SMTP_PASS",
		"smtp-tls":            envPrefix + "SMTP_TLS",
		"smtp-attach-audio":   envPrefix + "SMTP_ATTACH_AUDIO",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "sip-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIPPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "external-ip":
			cfg.ExternalIP = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "menu-path":
			cfg.MenuPath = val
		case "recording-enabled":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.RecordingEnabled = v
			}
		case "recording-max-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RecordingMaxDays = v
			}
		case "dtmf-debounce-ms":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DebounceMs = v
			}
		case "menu-idle-secs":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.IdleTimeoutSecs = v
			}
		case "capture-limit-secs":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.CaptureLimitSecs = v
			}
		case "tts-url":
			cfg.TTSURL = val
		case "weather-lat":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.WeatherLat = v
			}
		case "weather-lon":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.WeatherLon = v
			}
		case "nameday-url":
			cfg.NamedayURL = val
		case "assistant-url":
			cfg.AssistantURL = val
		case "assistant-key":
			cfg.AssistantKey = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "admin-password-hash":
			cfg.AdminPasswordHash = val
		case "smtp-host":
			cfg.SMTPHost = val
		case "smtp-port":
			cfg.SMTPPort = val
		case "smtp-from":
			cfg.SMTPFrom = val
		case "smtp-to":
			cfg.SMTPTo = val
		case "smtp-user":
			cfg.SMTPUser = val
		case "smtp-pass":
			cfg.SMTPPass = val
		case "smtp-tls":
			cfg.SMTPTLS = val
		case "smtp-attach-audio":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.SMTPAttachAudio = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SIPPort < 1 || c.SIPPort > 65535 {
		return fmt.Errorf("sip-port must be between 1 and 65535, got %d", c.SIPPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	// RTP uses even ports, RTCP the next odd port.
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}
	if c.DebounceMs < 0 || c.DebounceMs > 5000 {
		return fmt.Errorf("dtmf-debounce-ms must be between 0 and 5000, got %d", c.DebounceMs)
	}
	if c.IdleTimeoutSecs < 1 {
		return fmt.Errorf("menu-idle-secs must be positive, got %d", c.IdleTimeoutSecs)
	}
	if c.CaptureLimitSecs < 1 {
		return fmt.Errorf("capture-limit-secs must be positive, got %d", c.CaptureLimitSecs)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	validTLS := map[string]bool{"none": true, "starttls": true, "tls": true}
	if !validTLS[strings.ToLower(c.SMTPTLS)] {
		return fmt.Errorf("smtp-tls must be one of none, starttls, tls; got %q", c.SMTPTLS)
	}
	c.SMTPTLS = strings.ToLower(c.SMTPTLS)

	return nil
}

// SMTPConfigured reports whether voicemail email notifications are enabled.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.SMTPTo != ""
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// MediaIP returns the IP address advertised in SDP. If ExternalIP is
// configured, it is returned directly. Otherwise the function attempts to
// detect the machine's primary non-loopback IPv4 address. Falls back to
// "127.0.0.1" if detection fails.
func (c *Config) MediaIP() string {
	if c.ExternalIP != "" {
		return c.ExternalIP
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

// SIPHost returns the hostname to use for the SIP User-Agent.
func (c *Config) SIPHost() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
