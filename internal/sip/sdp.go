package sip

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/autovox/autovox/internal/media"
)

// MediaOffer is the subset of a remote SDP offer the endpoint acts on: where
// to send RTP, whether u-law voice is on offer, and which dynamic payload
// type carries telephone-event DTMF.
type MediaOffer struct {
	Address string
	Port    int
	HasPCMU bool
	// DTMFPayloadType is the offered telephone-event payload type, or 0
	// when the offer does not include one.
	DTMFPayloadType int
}

// RemoteAddr resolves the offer's RTP destination.
func (o *MediaOffer) RemoteAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", net.JoinHostPort(o.Address, strconv.Itoa(o.Port)))
}

// ParseOffer extracts the audio media line from an SDP offer body per
// RFC 4566. Only the session/media connection address, the audio port and
// the PCMU/telephone-event formats matter here.
func ParseOffer(body []byte) (*MediaOffer, error) {
	offer := &MediaOffer{}
	inAudio := false

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := line[2:]

		switch line[0] {
		case 'c':
			// c=IN IP4 <addr>; a media-level line overrides the session one.
			fields := strings.Fields(value)
			if len(fields) == 3 && (offer.Address == "" || inAudio) {
				offer.Address = fields[2]
			}
		case 'm':
			fields := strings.Fields(value)
			if len(fields) < 4 || fields[0] != "audio" {
				inAudio = false
				continue
			}
			inAudio = true
			port, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse sdp audio port: %w", err)
			}
			offer.Port = port
			for _, f := range fields[3:] {
				if f == "0" {
					offer.HasPCMU = true
				}
			}
		case 'a':
			if !inAudio {
				continue
			}
			// a=rtpmap:<pt> telephone-event/8000
			if rest, ok := strings.CutPrefix(value, "rtpmap:"); ok {
				pt, name, found := strings.Cut(rest, " ")
				if !found {
					continue
				}
				if strings.HasPrefix(strings.ToLower(name), "telephone-event/") {
					if n, err := strconv.Atoi(pt); err == nil {
						offer.DTMFPayloadType = n
					}
				}
			}
		}
	}

	if offer.Address == "" || offer.Port == 0 {
		return nil, fmt.Errorf("sdp offer has no usable audio media line")
	}
	if !offer.HasPCMU {
		return nil, fmt.Errorf("sdp offer does not include pcmu audio")
	}
	return offer, nil
}

// BuildAnswer produces the endpoint's SDP answer: u-law voice plus
// telephone-event DTMF on the given local address and RTP port.
func BuildAnswer(localIP string, rtpPort int, sessionID int64) []byte {
	if sessionID == 0 {
		sessionID = time.Now().Unix()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=autovox %d %d IN IP4 %s\r\n", sessionID, sessionID, localIP)
	fmt.Fprintf(&b, "s=autovox\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", localIP)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %d %d\r\n", rtpPort, media.PayloadPCMU, media.PayloadTelephoneEvent)
	fmt.Fprintf(&b, "a=rtpmap:%d PCMU/8000\r\n", media.PayloadPCMU)
	fmt.Fprintf(&b, "a=rtpmap:%d telephone-event/8000\r\n", media.PayloadTelephoneEvent)
	fmt.Fprintf(&b, "a=fmtp:%d 0-15\r\n", media.PayloadTelephoneEvent)
	fmt.Fprintf(&b, "a=ptime:20\r\n")
	fmt.Fprintf(&b, "a=sendrecv\r\n")
	return []byte(b.String())
}
