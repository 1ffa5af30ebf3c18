// Package sip is the telephony front end: it terminates inbound SIP
// calls, negotiates u-law media, and hands each accepted call to the
// session layer through the telephony interfaces.
package sip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/autovox/autovox/internal/config"
	"github.com/autovox/autovox/internal/media"
	"github.com/autovox/autovox/internal/telephony"
)

// Server wraps the sipgo stack. Every INVITE that negotiates u-law media
// becomes one Call handed to the configured handler on its own goroutine.
type Server struct {
	cfg     *config.Config
	ua      *sipgo.UserAgent
	srv     *sipgo.Server
	client  *sipgo.Client
	handler telephony.Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu    sync.Mutex
	calls map[string]*Call // by Call-ID, for BYE/INFO routing
}

// NewServer creates a SIP server with all handlers registered.
func NewServer(cfg *config.Config, handler telephony.Handler, logger *slog.Logger) (*Server, error) {
	logger = logger.With("component", "sip")

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("Autovox"),
		sipgo.WithUserAgentHostname(cfg.SIPHost()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	srv, err := sipgo.NewServer(ua,
		sipgo.WithServerLogger(logger),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}

	client, err := sipgo.NewClient(ua)
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		ua:      ua,
		srv:     srv,
		client:  client,
		handler: handler,
		logger:  logger,
		calls:   make(map[string]*Call),
	}
	s.registerHandlers()
	return s, nil
}

func (s *Server) registerHandlers() {
	s.srv.OnInvite(s.handleInvite)
	s.srv.OnBye(s.handleBye)
	s.srv.OnAck(s.handleACK)
	s.srv.OnCancel(s.handleCancel)
	s.srv.OnOptions(s.handleOptions)
	s.srv.OnInfo(s.handleInfo)
}

// Start begins listening on the configured transports. It returns once the
// listeners are launched; Stop tears them down.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	udpAddr := fmt.Sprintf("0.0.0.0:%d", s.cfg.SIPPort)
	tcpAddr := fmt.Sprintf("0.0.0.0:%d", s.cfg.SIPPort)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sip udp listener starting", "addr", udpAddr)
		if err := s.srv.ListenAndServe(ctx, "udp", udpAddr); err != nil {
			s.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sip tcp listener starting", "addr", tcpAddr)
		if err := s.srv.ListenAndServe(ctx, "tcp", tcpAddr); err != nil {
			s.logger.Error("sip tcp listener stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts down the listeners and waits for all call goroutines.
func (s *Server) Stop() {
	s.logger.Info("stopping sip server")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.srv.Close()
	s.ua.Close()
	s.logger.Info("sip server stopped")
}

// ActiveCalls returns the number of SIP legs currently tracked.
func (s *Server) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// handleInvite accepts an inbound call: 100 Trying immediately to stop
// retransmissions, then the leg is handed to the session layer, which
// answers it. The call stays tracked until its handler returns.
func (s *Server) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	s.logger.Info("invite received",
		"call_id", callID,
		"from", req.From().Address.User,
		"source", req.Source(),
	)

	// RFC 3261 §8.2.6.1
	trying := sip.NewResponseFromRequest(req, 100, "Trying", nil)
	if err := tx.Respond(trying); err != nil {
		s.logger.Error("failed to send 100 trying", "call_id", callID, "error", err)
		return
	}

	offer, err := ParseOffer(req.Body())
	if err != nil {
		s.logger.Warn("invite rejected: unusable sdp offer",
			"call_id", callID,
			"error", err,
		)
		s.respondError(req, tx, 488, "Not Acceptable Here")
		return
	}

	call := newCall(callID, req, tx, offer, s.client,
		s.cfg.MediaIP(), s.cfg.RTPPortMin, s.cfg.RTPPortMax, s.logger)

	s.mu.Lock()
	if _, exists := s.calls[callID]; exists {
		s.mu.Unlock()
		// Retransmitted INVITE for a leg already in progress.
		s.logger.Debug("invite retransmission ignored", "call_id", callID)
		return
	}
	s.calls[callID] = call
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.calls, callID)
			s.mu.Unlock()
		}()
		// The session layer answers, runs the menu and tears down.
		s.handler.HandleCall(context.WithoutCancel(context.Background()), call)
	}()
}

// handleBye marks the leg down and confirms. Cleanup runs in the call's
// session goroutine, which observes the hangup within one pacing window.
func (s *Server) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	s.mu.Lock()
	call := s.calls[callID]
	s.mu.Unlock()

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to bye", "call_id", callID, "error", err)
	}

	if call == nil {
		s.logger.Debug("bye for unknown call", "call_id", callID)
		return
	}
	s.logger.Info("bye received", "call_id", callID)
	call.remoteBye()
}

// handleACK confirms the dialog after our 200 OK. Nothing to do beyond
// logging; media is already flowing.
func (s *Server) handleACK(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	s.logger.Debug("sip ack received",
		"call_id", callID,
		"source", req.Source(),
	)
}

// handleCancel aborts a leg the caller gave up on before answer.
func (s *Server) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to cancel", "call_id", callID, "error", err)
	}

	s.mu.Lock()
	call := s.calls[callID]
	s.mu.Unlock()
	if call == nil {
		return
	}
	s.logger.Info("cancel received", "call_id", callID)
	call.remoteBye()
}

// handleOptions responds to keepalive pings.
func (s *Server) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	s.logger.Debug("sip options received",
		"from", req.From().Address.User,
		"source", req.Source(),
	)

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	res.AppendHeader(sip.NewHeader("Accept", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, OPTIONS, INFO"))

	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to options", "error", err)
	}
}

// handleInfo detects DTMF sent via SIP INFO, the fallback path for
// endpoints without RFC 2833 telephone-event, and forwards the digit to
// the call's signaling tone callback.
func (s *Server) handleInfo(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	respond := func() {
		res := sip.NewResponseFromRequest(req, 200, "OK", nil)
		if err := tx.Respond(res); err != nil {
			s.logger.Error("failed to respond to info", "error", err)
		}
	}

	ct := req.ContentType()
	if ct == nil {
		s.logger.Debug("sip info without content-type, ignoring",
			"call_id", callID,
			"source", req.Source(),
		)
		respond()
		return
	}

	dtmfInfo, err := media.ParseSIPInfoDTMF(ct.Value(), req.Body())
	if err != nil {
		s.logger.Debug("sip info with unsupported content type",
			"content_type", ct.Value(),
			"call_id", callID,
		)
		respond()
		return
	}

	s.logger.Info("sip info dtmf received",
		"signal", string(dtmfInfo.Signal),
		"duration_ms", dtmfInfo.Duration,
		"call_id", callID,
	)

	s.mu.Lock()
	call := s.calls[callID]
	s.mu.Unlock()
	if call != nil {
		call.deliverTone(string(dtmfInfo.Signal), time.Duration(dtmfInfo.Duration)*time.Millisecond)
	}
	respond()
}

func (s *Server) respondError(req *sip.Request, tx sip.ServerTransaction, code int, reason string) {
	res := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to send error response",
			"code", code,
			"error", err,
		)
	}
}
