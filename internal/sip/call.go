package sip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/autovox/autovox/internal/media"
)

// mediaStaleTimeout is how long an answered call may go without any RTP
// before the leg is considered dead. Backs up a lost BYE.
const mediaStaleTimeout = 15 * time.Second

// Call is one inbound SIP call leg. It implements telephony.Call: the
// session controller drives it without knowing about SIP or RTP.
type Call struct {
	id     string
	client *sipgo.Client
	logger *slog.Logger

	inviteReq *sip.Request
	inviteTx  sip.ServerTransaction
	offer     *MediaOffer
	localIP   string
	portMin   int
	portMax   int

	mu       sync.Mutex
	rtp      *rtpSession
	okRes    *sip.Response
	byeSent  bool
	onHangup func()
	onTone   func(symbol string, duration time.Duration)
	onMedia  func(payloadType int, payload []byte)

	answered atomic.Bool
	hungup   atomic.Bool
}

func newCall(id string, req *sip.Request, tx sip.ServerTransaction, offer *MediaOffer, client *sipgo.Client, localIP string, portMin, portMax int, logger *slog.Logger) *Call {
	return &Call{
		id:        id,
		client:    client,
		logger:    logger.With("call_id", id),
		inviteReq: req,
		inviteTx:  tx,
		offer:     offer,
		localIP:   localIP,
		portMin:   portMin,
		portMax:   portMax,
	}
}

// ID returns the SIP Call-ID.
func (c *Call) ID() string { return c.id }

// Caller returns the From header's display name and user part.
func (c *Call) Caller() (name, number string) {
	if from := c.inviteReq.From(); from != nil {
		return from.DisplayName, from.Address.User
	}
	return "", ""
}

// Answer allocates the RTP session, starts the receive loop and sends the
// 200 OK with the SDP answer.
func (c *Call) Answer(ctx context.Context) error {
	if c.hungup.Load() {
		return fmt.Errorf("call %s already terminated", c.id)
	}

	remote, err := c.offer.RemoteAddr()
	if err != nil {
		return fmt.Errorf("resolve rtp remote: %w", err)
	}

	rtp, err := newRTPSession(c.localIP, c.portMin, c.portMax, remote, c.logger)
	if err != nil {
		return fmt.Errorf("allocate rtp session: %w", err)
	}
	rtp.Start(c.handlePacket)

	answer := BuildAnswer(c.localIP, rtp.LocalPort(), 0)
	res := sip.NewResponseFromRequest(c.inviteReq, 200, "OK", answer)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if to := res.To(); to != nil {
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", sip.GenerateTagN(16))
		}
	}

	if err := c.inviteTx.Respond(res); err != nil {
		rtp.Stop()
		return fmt.Errorf("send 200 ok: %w", err)
	}

	c.mu.Lock()
	c.rtp = rtp
	c.okRes = res
	c.mu.Unlock()
	c.answered.Store(true)

	c.logger.Info("call answered",
		"rtp_port", rtp.LocalPort(),
		"remote_rtp", remote.String(),
	)
	return nil
}

// handlePacket normalizes inbound RTP to the payload types the call layer
// dispatches on: the negotiated telephone-event type maps onto the
// canonical one, voice passes through unchanged.
func (c *Call) handlePacket(payloadType int, payload []byte) {
	if c.offer.DTMFPayloadType != 0 && payloadType == c.offer.DTMFPayloadType {
		payloadType = media.PayloadTelephoneEvent
	}
	c.mu.Lock()
	fn := c.onMedia
	c.mu.Unlock()
	if fn != nil {
		fn(payloadType, payload)
	}
}

// SendAudio transmits one companded voice window over RTP.
func (c *Call) SendAudio(sampleCount int, payload []byte) error {
	c.mu.Lock()
	rtp := c.rtp
	c.mu.Unlock()
	if rtp == nil {
		return fmt.Errorf("call %s has no media session", c.id)
	}
	return rtp.SendAudio(sampleCount, payload)
}

// Active reports leg liveness: not hung up, and, once media has flowed,
// not stale. The media-age check catches legs whose BYE never arrived.
func (c *Call) Active() bool {
	if c.hungup.Load() {
		return false
	}
	if !c.answered.Load() {
		return true
	}
	c.mu.Lock()
	rtp := c.rtp
	c.mu.Unlock()
	if rtp == nil {
		return false
	}
	if age := rtp.LastPacketAge(); age >= 0 && age > mediaStaleTimeout {
		return false
	}
	return true
}

// Hangup tears the leg down locally: sends an in-dialog BYE when the call
// was answered and not already terminated, and releases the RTP session.
// Idempotent.
func (c *Call) Hangup() error {
	if !c.hungup.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	rtp := c.rtp
	okRes := c.okRes
	sendBye := c.answered.Load() && !c.byeSent
	c.byeSent = true
	c.mu.Unlock()

	var byeErr error
	if sendBye && okRes != nil {
		bye := buildBYE(c.inviteReq, okRes)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tx, err := c.client.TransactionRequest(ctx, bye, sipgo.ClientRequestBuild)
		if err != nil {
			byeErr = fmt.Errorf("send bye: %w", err)
		} else {
			// Best effort: wait briefly for the 200 to the BYE.
			select {
			case <-tx.Responses():
			case <-ctx.Done():
			}
			tx.Terminate()
		}
	}

	if rtp != nil {
		rtp.Stop()
	}
	c.fireHangup()
	return byeErr
}

// remoteBye handles a BYE from the far end: respond 200 and mark the leg
// down. The RTP session is released by the session controller's own
// Hangup call during terminate.
func (c *Call) remoteBye() {
	c.mu.Lock()
	c.byeSent = true
	c.mu.Unlock()
	c.hungup.Store(true)
	c.fireHangup()
}

func (c *Call) fireHangup() {
	c.mu.Lock()
	fn := c.onHangup
	c.onHangup = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// deliverTone forwards a signaling-path digit (SIP INFO) to the call layer.
func (c *Call) deliverTone(symbol string, duration time.Duration) {
	c.mu.Lock()
	fn := c.onTone
	c.mu.Unlock()
	if fn != nil {
		fn(symbol, duration)
	}
}

// OnHangup registers the hangup callback.
func (c *Call) OnHangup(fn func()) {
	c.mu.Lock()
	c.onHangup = fn
	c.mu.Unlock()
}

// OnTone registers the signaling digit callback.
func (c *Call) OnTone(fn func(symbol string, duration time.Duration)) {
	c.mu.Lock()
	c.onTone = fn
	c.mu.Unlock()
}

// OnMediaPacket registers the media payload callback.
func (c *Call) OnMediaPacket(fn func(payloadType int, payload []byte)) {
	c.mu.Lock()
	c.onMedia = fn
	c.mu.Unlock()
}

// buildBYE creates the in-dialog BYE for a call this endpoint answered.
// The ACK construction rules apply with the direction reversed: our To
// header (with its tag) becomes From, the caller's From becomes To, and
// the Request-URI targets the caller's Contact when present.
func buildBYE(inviteReq *sip.Request, okRes *sip.Response) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteReq.Contact(); contact != nil {
		recipient = &contact.Address
	}

	bye := sip.NewRequest(sip.BYE, *recipient.Clone())
	bye.SipVersion = inviteReq.SipVersion

	if to := okRes.To(); to != nil {
		from := &sip.FromHeader{
			DisplayName: to.DisplayName,
			Address:     *to.Address.Clone(),
			Params:      to.Params.Clone(),
		}
		bye.AppendHeader(from)
	}
	if from := inviteReq.From(); from != nil {
		to := &sip.ToHeader{
			DisplayName: from.DisplayName,
			Address:     *from.Address.Clone(),
			Params:      from.Params.Clone(),
		}
		bye.AppendHeader(to)
	}
	if h := inviteReq.CallID(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}

	cseq := &sip.CSeqHeader{SeqNo: 1, MethodName: sip.BYE}
	if h := inviteReq.CSeq(); h != nil {
		cseq.SeqNo = h.SeqNo + 1
	}
	bye.AppendHeader(cseq)

	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)

	bye.SetTransport(inviteReq.Transport())
	bye.SetDestination(inviteReq.Source())
	return bye
}
