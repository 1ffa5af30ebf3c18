package prompts

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ExtractToDir copies the embedded default prompts into dir so they can
// be read by the audio player. Files that already exist on disk are
// skipped, preserving any replacements the operator has installed.
func ExtractToDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}

	for _, name := range DefaultPrompts {
		dest := filepath.Join(dir, name)

		if _, err := os.Stat(dest); err == nil {
			slog.Debug("prompt already exists, skipping", "file", name)
			continue
		}

		data, err := fs.ReadFile(DefaultFS, filepath.Join("system", name))
		if err != nil {
			return fmt.Errorf("reading embedded prompt %s: %w", name, err)
		}

		if err := os.WriteFile(dest, data, 0640); err != nil {
			return fmt.Errorf("writing prompt %s: %w", name, err)
		}

		slog.Info("extracted default prompt", "file", name, "path", dest)
	}

	return nil
}
