// Package email sends new-voicemail notifications over SMTP, optionally
// attaching the recorded WAV file.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SMTPConfig holds the SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname
	Port     string // SMTP port (25, 587, 465)
	From     string // From email address
	To       string // notification recipient
	Username string // SMTP auth username
	Password string // SMTP auth password
	TLS      string // "none", "starttls", "tls"
}

// Valid returns true if the minimum required fields are set.
func (c SMTPConfig) Valid() bool {
	return c.Host != "" && c.Port != "" && c.From != "" && c.To != ""
}

// Notification describes one voicemail message.
type Notification struct {
	CallID       string
	CallerNumber string
	Timestamp    time.Time
	DurationSecs int
	AudioFile    string // path to the WAV file on disk
	AttachAudio  bool   // whether to attach the WAV file
}

// Sender sends voicemail notification emails via SMTP.
type Sender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	// dialFunc allows injecting a custom dialer for testing.
	dialFunc func(addr string, tlsConfig *tls.Config, tlsMode string) (smtpClient, error)
}

// smtpClient abstracts the methods used from *smtp.Client for testing.
type smtpClient interface {
	Hello(localName string) error
	Extension(ext string) (bool, string)
	StartTLS(config *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// NewSender creates a new email Sender.
func NewSender(cfg SMTPConfig, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:      cfg,
		logger:   logger.With("component", "email"),
		dialFunc: defaultDial,
	}
}

// Send delivers an email notification for a new voicemail message.
func (s *Sender) Send(ctx context.Context, notif Notification) error {
	if !s.cfg.Valid() {
		return fmt.Errorf("smtp not configured")
	}

	msg, err := s.buildMessage(notif)
	if err != nil {
		return fmt.Errorf("building email message: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	client, err := s.dialFunc(addr, tlsConfig, s.cfg.TLS)
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}

	if strings.EqualFold(s.cfg.TLS, "starttls") {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(s.cfg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit error (non-fatal)", "error", err)
	}

	s.logger.Info("voicemail notification email sent",
		"to", s.cfg.To,
		"call_id", notif.CallID,
		"caller", notif.CallerNumber,
		"attach_audio", notif.AttachAudio,
	)

	return nil
}

// defaultDial connects to the SMTP server using either plain TCP or implicit TLS.
func defaultDial(addr string, tlsConfig *tls.Config, tlsMode string) (smtpClient, error) {
	if strings.EqualFold(tlsMode, "tls") {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, tlsConfig.ServerName)
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	return smtp.NewClient(conn, host)
}

// buildMessage constructs the full MIME email message bytes.
func (s *Sender) buildMessage(notif Notification) ([]byte, error) {
	var buf bytes.Buffer

	caller := notif.CallerNumber
	if caller == "" {
		caller = "an unknown caller"
	}

	subject := fmt.Sprintf("New voicemail from %s", caller)
	body := fmt.Sprintf(
		"You have a new voicemail message.\n\n"+
			"From: %s\n"+
			"Date: %s\n"+
			"Duration: %s\n",
		caller,
		notif.Timestamp.Format("Mon, 02 Jan 2006 3:04 PM"),
		formatDuration(notif.DurationSecs),
	)

	if notif.AttachAudio && notif.AudioFile != "" {
		return s.buildMultipartMessage(subject, body, notif.AudioFile, &buf)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", s.cfg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	buf.WriteString(body)

	return buf.Bytes(), nil
}

// buildMultipartMessage constructs a MIME multipart email with a WAV attachment.
func (s *Sender) buildMultipartMessage(subject, body, audioFile string, buf *bytes.Buffer) ([]byte, error) {
	writer := multipart.NewWriter(buf)

	fmt.Fprintf(buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(buf, "To: %s\r\n", s.cfg.To)
	fmt.Fprintf(buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%s\r\n", writer.Boundary())
	fmt.Fprintf(buf, "\r\n")

	textHeader := make(textproto.MIMEHeader)
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("writing text part: %w", err)
	}

	audioData, err := os.ReadFile(audioFile)
	if err != nil {
		return nil, fmt.Errorf("reading audio file %q: %w", audioFile, err)
	}

	filename := filepath.Base(audioFile)
	attachHeader := make(textproto.MIMEHeader)
	attachHeader.Set("Content-Type", "audio/wav; name=\""+filename+"\"")
	attachHeader.Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	attachHeader.Set("Content-Transfer-Encoding", "base64")

	attachPart, err := writer.CreatePart(attachHeader)
	if err != nil {
		return nil, fmt.Errorf("creating attachment part: %w", err)
	}

	encoder := base64.NewEncoder(base64.StdEncoding, attachPart)
	if _, err := encoder.Write(audioData); err != nil {
		return nil, fmt.Errorf("encoding audio attachment: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing base64 encoder: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return buf.Bytes(), nil
}

// formatDuration converts seconds into a human-readable string like "2m 15s".
func formatDuration(secs int) string {
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m := secs / 60
	s := secs % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
