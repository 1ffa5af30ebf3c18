package sip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	rtpVersion    = 2
	rtpHeaderSize = 12
	maxRTPPacket  = 1500

	// rtpReadTimeout is the socket read deadline so the receive loop can
	// periodically check for shutdown.
	rtpReadTimeout = 100 * time.Millisecond

	// timestampIncrement is the RTP timestamp step per 20ms u-law window
	// (one clock tick per sample at 8 kHz).
	timestampIncrement = 160
)

// buildRTPHeader writes a 12-byte RTP header into buf.
func buildRTPHeader(buf []byte, pt int, marker bool, seq uint16, ts uint32, ssrc uint32) {
	// Byte 0: V=2, P=0, X=0, CC=0
	buf[0] = rtpVersion << 6
	buf[1] = byte(pt & 0x7F)
	if marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], ts)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
}

// atomicAddr holds the learned remote RTP address. Symmetric RTP: the
// first packet received from the far end pins the true return address,
// which may differ from what the SDP offer advertised (NAT).
type atomicAddr struct {
	v atomic.Pointer[net.UDPAddr]
}

func (a *atomicAddr) load() *net.UDPAddr { return a.v.Load() }

func (a *atomicAddr) store(addr *net.UDPAddr) { a.v.Store(addr) }

// rtpSession owns one call's RTP socket: outbound voice packetization and
// the inbound receive loop that feeds media payloads to the call layer.
type rtpSession struct {
	conn   *net.UDPConn
	remote atomicAddr
	logger *slog.Logger

	ssrc   uint32
	marker atomic.Bool

	mu  sync.Mutex
	seq uint16
	ts  uint32

	lastPacket atomic.Int64 // unix nanos of the last received packet

	onPacket func(payloadType int, payload []byte)
	stopped  atomic.Bool
	done     chan struct{}
}

// newRTPSession binds a UDP socket in [portMin, portMax] and aims outbound
// packets at the offered remote address until symmetric RTP learns better.
func newRTPSession(localIP string, portMin, portMax int, remote *net.UDPAddr, logger *slog.Logger) (*rtpSession, error) {
	conn, err := bindUDPPort(localIP, portMin, portMax)
	if err != nil {
		return nil, err
	}

	s := &rtpSession{
		conn:   conn,
		logger: logger.With("subsystem", "rtp"),
		ssrc:   rand.Uint32(),
		seq:    uint16(rand.UintN(65536)),
		ts:     rand.Uint32(),
		done:   make(chan struct{}),
	}
	s.remote.store(remote)
	s.marker.Store(true)
	return s, nil
}

// bindUDPPort walks the configured port range until a bind succeeds.
func bindUDPPort(localIP string, portMin, portMax int) (*net.UDPConn, error) {
	for port := portMin; port <= portMax; port++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(localIP), Port: port})
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("no free rtp port in %d-%d", portMin, portMax)
}

// LocalPort returns the bound RTP port, for the SDP answer.
func (s *rtpSession) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// SendAudio packetizes one companded voice window and transmits it. The
// first packet after answer carries the marker bit.
func (s *rtpSession) SendAudio(sampleCount int, payload []byte) error {
	remote := s.remote.load()
	if remote == nil {
		return errors.New("rtp remote address unknown")
	}

	s.mu.Lock()
	seq := s.seq
	ts := s.ts
	s.seq++
	s.ts += uint32(sampleCount)
	s.mu.Unlock()

	pkt := make([]byte, rtpHeaderSize+len(payload))
	buildRTPHeader(pkt, 0, s.marker.CompareAndSwap(true, false), seq, ts, s.ssrc)
	copy(pkt[rtpHeaderSize:], payload)

	if _, err := s.conn.WriteToUDP(pkt, remote); err != nil {
		return fmt.Errorf("rtp send: %w", err)
	}
	return nil
}

// Start launches the receive loop. The callback runs on the loop goroutine
// and receives the payload type and raw payload of every packet.
func (s *rtpSession) Start(onPacket func(payloadType int, payload []byte)) {
	s.onPacket = onPacket
	go s.readLoop()
}

// LastPacketAge reports how long ago the last RTP packet arrived, or a
// negative duration when none has arrived yet.
func (s *rtpSession) LastPacketAge() time.Duration {
	n := s.lastPacket.Load()
	if n == 0 {
		return -1
	}
	return time.Since(time.Unix(0, n))
}

// Stop ends the receive loop and closes the socket.
func (s *rtpSession) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.conn.Close()
	<-s.done
}

func (s *rtpSession) readLoop() {
	defer close(s.done)
	buf := make([]byte, maxRTPPacket)

	for !s.stopped.Load() {
		s.conn.SetReadDeadline(time.Now().Add(rtpReadTimeout))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if s.stopped.Load() {
				return
			}
			s.logger.Debug("rtp read error", "error", err)
			continue
		}
		if n < rtpHeaderSize {
			continue
		}

		pkt := buf[:n]
		s.lastPacket.Store(time.Now().UnixNano())

		// Symmetric RTP: adopt the true return address on first packet.
		if cur := s.remote.load(); cur == nil || !cur.IP.Equal(addr.IP) || cur.Port != addr.Port {
			s.logger.Debug("rtp remote learned", "addr", addr.String())
			s.remote.store(addr)
		}

		pt := int(pkt[1] & 0x7F)

		// Skip the header, accounting for CSRC entries and extensions.
		cc := int(pkt[0] & 0x0F)
		headerLen := rtpHeaderSize + cc*4
		if headerLen >= n {
			continue
		}
		if pkt[0]&0x10 != 0 {
			if headerLen+4 > n {
				continue
			}
			extLen := int(binary.BigEndian.Uint16(pkt[headerLen+2:headerLen+4])) * 4
			headerLen += 4 + extLen
			if headerLen >= n {
				continue
			}
		}

		if s.onPacket != nil {
			payload := make([]byte, n-headerLen)
			copy(payload, pkt[headerLen:])
			s.onPacket(pt, payload)
		}
	}
}
