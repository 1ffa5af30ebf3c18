package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeCalls struct{ n int }

func (f fakeCalls) Count() int { return f.n }

type fakeVoicemail struct{ n int }

func (f fakeVoicemail) CountUnread(context.Context) (int, error) { return f.n, nil }

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.CallStarted()
	r.CallStarted()
	r.CallEnded(30 * time.Second)
	r.DigitAccepted("media")
	r.DigitAccepted("media")
	r.DigitAccepted("signaling")
	r.RecordingWritten(320)
	r.VoicemailRecorded()

	if got := testutil.ToFloat64(r.callsStarted); got != 2 {
		t.Errorf("calls started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.callsEnded); got != 1 {
		t.Errorf("calls ended = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.digitsAccepted.WithLabelValues("media")); got != 2 {
		t.Errorf("media digits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.recordingBytes); got != 320 {
		t.Errorf("recording bytes = %v, want 320", got)
	}
	if got := testutil.ToFloat64(r.voicemailsStored); got != 1 {
		t.Errorf("voicemails = %v, want 1", got)
	}
}

func TestCollectorGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(fakeCalls{n: 3}, fakeVoicemail{n: 5}, time.Now().Add(-time.Minute))
	reg.MustRegister(c)

	expected := strings.NewReader(`
# HELP autovox_active_calls Number of currently active calls
# TYPE autovox_active_calls gauge
autovox_active_calls 3
# HELP autovox_voicemail_unread Number of unread voicemail messages
# TYPE autovox_voicemail_unread gauge
autovox_voicemail_unread 5
`)
	if err := testutil.GatherAndCompare(reg, expected,
		"autovox_active_calls", "autovox_voicemail_unread"); err != nil {
		t.Error(err)
	}
}

func TestCollectorNilProviders(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(nil, nil, time.Now()))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != "autovox_uptime_seconds" {
			t.Errorf("unexpected metric family %s", f.GetName())
		}
	}
}
