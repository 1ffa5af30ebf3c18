package speech

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/autovox/autovox/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSynthesize(t *testing.T) {
	wav := media.EncodeWAV(make([]int16, 160))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/synthesize" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Text != "hello caller" {
			t.Errorf("text = %q", req.Text)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	clip, err := c.Synthesize(context.Background(), "hello caller")
	if err != nil {
		t.Fatal(err)
	}
	if len(clip) != len(wav) {
		t.Errorf("clip is %d bytes, want %d", len(clip), len(wav))
	}
}

func TestSynthesizeRejectsBadAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not audio at all"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	if _, err := c.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected error for non-WAV response")
	}
}

func TestSynthesizeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	if _, err := c.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected error for 503 response")
	}
}
