package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewCreatesDirectories(t *testing.T) {
	dataDir := t.TempDir()
	_, err := New(dataDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"prompts", "recordings", "voicemail"} {
		if _, err := os.Stat(filepath.Join(dataDir, sub)); err != nil {
			t.Errorf("directory %s not created: %v", sub, err)
		}
	}
}

func TestReadPrompt(t *testing.T) {
	s := newTestStore(t)
	want := []byte("RIFFdata")
	if err := os.WriteFile(filepath.Join(s.PromptsDir(), "greeting.wav"), want, 0640); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadPrompt("greeting.wav")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("prompt content = %q, want %q", got, want)
	}
}

func TestReadPromptRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"../secret.wav", "a/b.wav", ".hidden"} {
		if _, err := s.ReadPrompt(name); err == nil {
			t.Errorf("ReadPrompt(%q) accepted invalid name", name)
		}
	}
}

func TestWriteRecording(t *testing.T) {
	s := newTestStore(t)
	path, err := s.WriteRecording("call-abc", []byte("wavdata"))
	if err != nil {
		t.Fatal(err)
	}

	wantDir := time.Now().Format("2006-01-02")
	if filepath.Base(filepath.Dir(path)) != wantDir {
		t.Errorf("recording path %s not under date directory %s", path, wantDir)
	}
	if filepath.Ext(path) != ".wav" {
		t.Errorf("recording file name = %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "wavdata" {
		t.Errorf("file content = %q", data)
	}
}

func TestWritesGetDistinctNames(t *testing.T) {
	s := newTestStore(t)
	p1, err := s.WriteVoicemail("same-call", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.WriteVoicemail("same-call", []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Error("two writes for the same call produced the same path")
	}
}

func TestCleanupOld(t *testing.T) {
	s := newTestStore(t)

	old := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	recent := time.Now().Format("2006-01-02")
	for _, day := range []string{old, recent} {
		dir := filepath.Join(s.recordingsDir(), day)
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "c.wav"), []byte("x"), 0640); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.CleanupOld(7)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(s.recordingsDir(), old)); !os.IsNotExist(err) {
		t.Error("expired directory still present")
	}
	if _, err := os.Stat(filepath.Join(s.recordingsDir(), recent)); err != nil {
		t.Error("recent directory removed")
	}
}

func TestCleanupDisabled(t *testing.T) {
	s := newTestStore(t)
	removed, err := s.CleanupOld(0)
	if err != nil || removed != 0 {
		t.Errorf("CleanupOld(0) = (%d, %v), want no-op", removed, err)
	}
}
