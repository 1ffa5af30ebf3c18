package media

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounceThreshold is the window within which a repeat of the last
// accepted symbol is treated as a duplicate report of the same key press.
// Tunable via config; ~200ms collapses cross-source duplicates and signaling
// retransmissions without swallowing deliberate repeated presses.
const DefaultDebounceThreshold = 200 * time.Millisecond

// DigitSource identifies which detector reported a candidate digit.
type DigitSource int

const (
	// SourceSignaling is the telephony stack's own tone-detection event.
	SourceSignaling DigitSource = iota
	// SourceMedia is inspection of telephone-event media packets.
	SourceMedia
)

func (s DigitSource) String() string {
	switch s {
	case SourceSignaling:
		return "signaling"
	case SourceMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Debouncer folds the two independent DTMF detection paths into a single
// deduplicated digit stream. One physical key press typically surfaces
// twice: once from the signaling stack's tone callback and once from the
// media payload. It may also repeat through retransmission or a held key.
//
// A candidate symbol is accepted when it differs from the last accepted
// symbol, or when at least the threshold has elapsed since that symbol was
// last accepted. Safe for concurrent use by both sources.
type Debouncer struct {
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time // injectable for testing

	mu       sync.Mutex
	last     byte
	lastAt   time.Time
	accepted bool
}

// NewDebouncer creates a debouncer with the given threshold. A zero or
// negative threshold selects the default.
func NewDebouncer(threshold time.Duration, logger *slog.Logger) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultDebounceThreshold
	}
	return &Debouncer{
		threshold: threshold,
		logger:    logger.With("subsystem", "dtmf-debounce"),
		now:       time.Now,
	}
}

// Accept reports whether the candidate symbol from the given source should
// be delivered. Accepted symbols update the dedup state.
func (d *Debouncer) Accept(src DigitSource, symbol byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.accepted && symbol == d.last && now.Sub(d.lastAt) < d.threshold {
		d.logger.Debug("duplicate digit suppressed",
			"digit", string(symbol),
			"source", src.String(),
			"since_last", now.Sub(d.lastAt),
		)
		return false
	}

	d.last = symbol
	d.lastAt = now
	d.accepted = true

	d.logger.Debug("digit accepted",
		"digit", string(symbol),
		"source", src.String(),
	)
	return true
}

// Reset clears the dedup state, so the next candidate is always accepted.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accepted = false
}
