package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autovox/autovox/internal/api/middleware"
	"github.com/autovox/autovox/internal/database"
)

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loginRequest is the POST /auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the issued bearer token.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin verifies the admin password and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminPasswordHash == "" {
		writeError(w, http.StatusServiceUnavailable, "admin login not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username != "admin" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := CheckPassword(req.Password, s.cfg.AdminPasswordHash)
	if err != nil {
		slog.Error("login: password check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateAdminToken(s.jwtSecret, req.Username)
	if err != nil {
		slog.Error("login: token generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// systemStatus is the GET /system/status payload.
type systemStatus struct {
	UptimeSecs      int `json:"uptime_secs"`
	ActiveCalls     int `json:"active_calls"`
	UnreadVoicemail int `json:"unread_voicemail"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	unread, err := s.voicemail.CountUnread(r.Context())
	if err != nil {
		slog.Error("status: counting unread voicemail", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, systemStatus{
		UptimeSecs:      int(time.Since(s.startTime).Seconds()),
		ActiveCalls:     s.registry.Count(),
		UnreadVoicemail: unread,
	})
}

// activeCallsResponse is the GET /calls/active payload.
type activeCallsResponse struct {
	Count   int      `json:"count"`
	CallIDs []string `json:"call_ids"`
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	writeJSON(w, http.StatusOK, activeCallsResponse{Count: len(ids), CallIDs: ids})
}

// callLogResponse is the GET /call-log payload.
type callLogResponse struct {
	Records any `json:"records"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
}

func (s *Server) handleCallLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	filter := database.CallLogListFilter{
		Search:    q.Get("search"),
		StartDate: q.Get("start"),
		EndDate:   q.Get("end"),
		Limit:     limit,
		Offset:    offset,
	}

	records, total, err := s.callLog.List(r.Context(), filter)
	if err != nil {
		slog.Error("call log list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, callLogResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleVoicemailList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "1"
	msgs, err := s.voicemail.List(r.Context(), unreadOnly)
	if err != nil {
		slog.Error("voicemail list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) voicemailID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid voicemail id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleVoicemailMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := s.voicemailID(w, r)
	if !ok {
		return
	}

	msg, err := s.voicemail.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "voicemail not found")
		return
	}

	if err := s.voicemail.MarkRead(r.Context(), id); err != nil {
		slog.Error("voicemail mark read failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (s *Server) handleVoicemailDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.voicemailID(w, r)
	if !ok {
		return
	}

	path, err := s.voicemail.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "voicemail not found")
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove voicemail file", "path", path, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleVoicemailAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := s.voicemailID(w, r)
	if !ok {
		return
	}

	msg, err := s.voicemail.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "voicemail not found")
		return
	}

	f, err := os.Open(msg.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "voicemail audio missing")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, "voicemail.wav", msg.Timestamp, f)
}
