// Package storage lays out the on-disk data directory: audio prompts,
// per-call recordings and voicemail messages. Recordings and voicemails
// are partitioned into YYYY-MM-DD subdirectories so retention cleanup
// can operate on whole days.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0750
	filePerm = 0640
)

// Store resolves and manages paths under the data directory.
type Store struct {
	dataDir string
	logger  *slog.Logger
}

// New creates the store and ensures the prompts, recordings and voicemail
// directories exist under dataDir.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		dataDir: dataDir,
		logger:  logger.With("subsystem", "storage"),
	}
	for _, dir := range []string{s.PromptsDir(), s.recordingsDir(), s.voicemailDir()} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// PromptsDir returns the directory holding audio prompt files.
func (s *Store) PromptsDir() string {
	return filepath.Join(s.dataDir, "prompts")
}

func (s *Store) recordingsDir() string {
	return filepath.Join(s.dataDir, "recordings")
}

func (s *Store) voicemailDir() string {
	return filepath.Join(s.dataDir, "voicemail")
}

// ReadPrompt loads a prompt file by name. The name must be a bare file
// name; path separators are rejected so callers cannot escape the
// prompts directory.
func (s *Store) ReadPrompt(name string) ([]byte, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid prompt name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.PromptsDir(), name))
	if err != nil {
		return nil, fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return data, nil
}

// WriteRecording stores a finished call recording and returns its path.
// Files land in recordings/YYYY-MM-DD/<uuid>.wav. File names are generated
// rather than derived from the SIP Call-ID, which is not filesystem-safe.
func (s *Store) WriteRecording(callID string, wav []byte) (string, error) {
	return s.writeDated(s.recordingsDir(), callID, wav)
}

// WriteVoicemail stores a voicemail message and returns its path.
// Files land in voicemail/YYYY-MM-DD/<uuid>.wav.
func (s *Store) WriteVoicemail(callID string, wav []byte) (string, error) {
	return s.writeDated(s.voicemailDir(), callID, wav)
}

func (s *Store) writeDated(baseDir, callID string, wav []byte) (string, error) {
	dir := filepath.Join(baseDir, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, wav, filePerm); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	s.logger.Info("audio file written", "call_id", callID, "path", path, "bytes", len(wav))
	return path, nil
}

// CleanupOld removes recording and voicemail day-directories older than
// maxDays and returns the number of directories removed. A maxDays of
// zero disables cleanup.
func (s *Store) CleanupOld(maxDays int) (int, error) {
	if maxDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -maxDays)
	removed := 0
	for _, base := range []string{s.recordingsDir(), s.voicemailDir()} {
		entries, err := os.ReadDir(base)
		if err != nil {
			return removed, fmt.Errorf("reading %s: %w", base, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			day, err := time.Parse("2006-01-02", e.Name())
			if err != nil {
				continue
			}
			if !day.Before(cutoff) {
				continue
			}
			path := filepath.Join(base, e.Name())
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("failed to remove expired directory", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("retention cleanup", "removed_dirs", removed, "max_days", maxDays)
	}
	return removed, nil
}

// StartCleanupTicker runs a background goroutine that periodically removes
// audio older than maxDays. A maxDays of 0 disables the ticker. The
// goroutine stops when the provided context is cancelled.
func (s *Store) StartCleanupTicker(ctx context.Context, maxDays int, interval time.Duration) {
	if maxDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CleanupOld(maxDays); err != nil {
					s.logger.Error("retention cleanup failed", "error", err)
				}
			}
		}
	}()
}
