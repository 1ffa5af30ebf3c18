package media

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// PayloadPCMU is the static RTP payload type for G.711 u-law voice.
	PayloadPCMU = 0

	// PayloadTelephoneEvent is the dynamic RTP payload type negotiated for
	// RFC 2833 telephone-event (DTMF). Commonly 101.
	PayloadTelephoneEvent = 101
)

// dtmfPayloadSize is the size of an RFC 2833 telephone-event payload.
const dtmfPayloadSize = 4

// DTMFEvent represents an RFC 2833 telephone-event payload. The first byte
// is the digit code (0-9 = digits, 10 = *, 11 = #); the high bit of the
// second byte marks end of the tone.
type DTMFEvent struct {
	Event    uint8  // digit code
	End      bool   // E bit: final packet of the key press
	Volume   uint8  // power level in dBm0 (0-63)
	Duration uint16 // event duration in timestamp units
}

// ParseDTMFEvent parses an RFC 2833 telephone-event payload from raw bytes.
// Returns nil if the payload is too short.
func ParseDTMFEvent(payload []byte) *DTMFEvent {
	if len(payload) < dtmfPayloadSize {
		return nil
	}
	return &DTMFEvent{
		Event:    payload[0],
		End:      payload[1]&0x80 != 0,
		Volume:   payload[1] & 0x3F,
		Duration: uint16(payload[2])<<8 | uint16(payload[3]),
	}
}

// Symbol returns the keypad symbol for the event code, or 0 if the code is
// outside the {0-9, *, #} set this endpoint handles.
func (e *DTMFEvent) Symbol() byte {
	return symbolForCode(e.Event)
}

func symbolForCode(code uint8) byte {
	switch {
	case code <= 9:
		return '0' + code
	case code == 10:
		return '*'
	case code == 11:
		return '#'
	default:
		return 0
	}
}

// ErrInvalidSymbol is returned when a tone name or code cannot be normalized
// to a keypad symbol.
var ErrInvalidSymbol = errors.New("invalid dtmf symbol")

// NormalizeSymbol maps the alternate encodings that signaling stacks report
// for a keypad tone onto the canonical symbol set {0-9, *, #}. Accepted
// inputs: single characters ("7", "*", "#"), the numeric event codes ("10",
// "11"), and the tone names some stacks use ("Star", "Pound", "Hash").
func NormalizeSymbol(s string) (byte, error) {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "star":
		return '*', nil
	case "pound", "hash":
		return '#', nil
	}
	if len(v) == 1 {
		c := v[0]
		if (c >= '0' && c <= '9') || c == '*' || c == '#' {
			return c, nil
		}
		return 0, ErrInvalidSymbol
	}
	if code, err := strconv.Atoi(v); err == nil {
		if sym := symbolForCode(uint8(code)); sym != 0 && code >= 0 && code <= 11 {
			return sym, nil
		}
	}
	return 0, ErrInvalidSymbol
}

// SIP INFO DTMF fallback
//
// Some endpoints deliver DTMF via SIP INFO instead of in-band telephone-event.
// Two body formats are common:
//
//  1. Content-Type: application/dtmf-relay
//     Signal=5\r\nDuration=160\r\n
//
//  2. Content-Type: application/dtmf
//     5

// DTMFInfo represents a DTMF digit received via SIP INFO request.
type DTMFInfo struct {
	Signal   byte // normalized keypad symbol
	Duration int  // duration in milliseconds (0 if not specified)
}

// ErrInvalidDTMFInfo is returned when a SIP INFO body cannot be parsed as DTMF.
var ErrInvalidDTMFInfo = errors.New("invalid dtmf info body")

// ParseSIPInfoDTMF detects and parses DTMF from a SIP INFO request body based
// on the Content-Type header. Supported content types:
//   - application/dtmf-relay
//   - application/dtmf
func ParseSIPInfoDTMF(contentType string, body []byte) (*DTMFInfo, error) {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch ct {
	case "application/dtmf-relay":
		return parseDTMFRelay(body)
	case "application/dtmf":
		sym, err := NormalizeSymbol(string(body))
		if err != nil {
			return nil, ErrInvalidDTMFInfo
		}
		return &DTMFInfo{Signal: sym}, nil
	default:
		return nil, ErrInvalidDTMFInfo
	}
}

// parseDTMFRelay parses an application/dtmf-relay body:
//
//	Signal=<digit>\r\nDuration=<ms>\r\n
//
// Signal is required. Duration defaults to 0 if missing or unparseable.
func parseDTMFRelay(body []byte) (*DTMFInfo, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, ErrInvalidDTMFInfo
	}

	info := &DTMFInfo{}
	foundSignal := false

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "signal":
			sym, err := NormalizeSymbol(value)
			if err != nil {
				return nil, ErrInvalidDTMFInfo
			}
			info.Signal = sym
			foundSignal = true
		case "duration":
			if d, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && d >= 0 {
				info.Duration = d
			}
		}
	}

	if !foundSignal {
		return nil, ErrInvalidDTMFInfo
	}
	return info, nil
}
