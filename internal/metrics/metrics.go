// Package metrics exposes Prometheus instrumentation: event counters fed
// by the call sessions and a scrape-time collector for gauge values.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the event-driven counters. It satisfies the session
// controller's Metrics interface.
type Recorder struct {
	callsStarted     prometheus.Counter
	callsEnded       prometheus.Counter
	callDuration     prometheus.Histogram
	digitsAccepted   *prometheus.CounterVec
	recordingBytes   prometheus.Counter
	voicemailsStored prometheus.Counter
}

// NewRecorder creates the counters and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autovox_calls_started_total",
			Help: "Total number of calls answered",
		}),
		callsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autovox_calls_ended_total",
			Help: "Total number of calls torn down",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autovox_call_duration_seconds",
			Help:    "Call duration from answer to teardown",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		digitsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autovox_digits_accepted_total",
			Help: "DTMF digits accepted after debouncing, by source",
		}, []string{"source"}),
		recordingBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autovox_recording_bytes_total",
			Help: "Total bytes of call recordings written to disk",
		}),
		voicemailsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autovox_voicemails_total",
			Help: "Total voicemail messages recorded",
		}),
	}
	reg.MustRegister(r.callsStarted, r.callsEnded, r.callDuration,
		r.digitsAccepted, r.recordingBytes, r.voicemailsStored)
	return r
}

func (r *Recorder) CallStarted() { r.callsStarted.Inc() }

func (r *Recorder) CallEnded(duration time.Duration) {
	r.callsEnded.Inc()
	r.callDuration.Observe(duration.Seconds())
}

func (r *Recorder) DigitAccepted(source string) {
	r.digitsAccepted.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordingWritten(bytes int) {
	r.recordingBytes.Add(float64(bytes))
}

func (r *Recorder) VoicemailRecorded() { r.voicemailsStored.Inc() }

// ActiveCallsProvider exposes the number of active calls.
type ActiveCallsProvider interface {
	Count() int
}

// UnreadVoicemailCounter returns the number of unread voicemail messages.
type UnreadVoicemailCounter interface {
	CountUnread(ctx context.Context) (int, error)
}

// Collector is a prometheus.Collector that gathers gauge values at
// scrape time.
type Collector struct {
	activeCalls ActiveCallsProvider
	voicemail   UnreadVoicemailCounter
	startTime   time.Time

	activeCallsDesc     *prometheus.Desc
	unreadVoicemailDesc *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a new gauge collector. Either provider may be nil
// if unavailable.
func NewCollector(activeCalls ActiveCallsProvider, voicemail UnreadVoicemailCounter, startTime time.Time) *Collector {
	return &Collector{
		activeCalls: activeCalls,
		voicemail:   voicemail,
		startTime:   startTime,

		activeCallsDesc: prometheus.NewDesc(
			"autovox_active_calls",
			"Number of currently active calls",
			nil, nil,
		),
		unreadVoicemailDesc: prometheus.NewDesc(
			"autovox_voicemail_unread",
			"Number of unread voicemail messages",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"autovox_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.unreadVoicemailDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries the providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.activeCalls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.activeCalls.Count()),
		)
	}

	if c.voicemail != nil {
		count, err := c.voicemail.CountUnread(ctx)
		if err != nil {
			slog.Error("metrics: failed to count unread voicemail", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.unreadVoicemailDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
