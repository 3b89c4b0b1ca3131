package gateway

import (
	"errors"
	"net/http"
	"time"

	"wagate/internal/services/session"
	logx "wagate/pkg/logx"
)

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleQRStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    st.Status,
		"qr":        nullableString(st.QR),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      st.Status,
		"isReady":     st.Ready(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"connectedAt": nullableTime(st.ConnectedAt),
		"phoneNumber": nullableString(st.Number),
	})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      st.Status,
		"number":      nullableString(st.Number),
		"connectedAt": nullableTime(st.ConnectedAt),
		"uptime":      st.Uptime().Milliseconds(),
	})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.All())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "OK",
		"uptime":         time.Since(s.started).Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"whatsappStatus": s.sessions.Snapshot().Status,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Logout(r.Context())
	switch {
	case errors.Is(err, session.ErrNotReady):
		// Precondition, not a backend failure: 200 with success=false.
		writeJSON(w, http.StatusOK, commandResponse{Success: false, Error: "client is not connected"})
	case err != nil:
		s.log.Error("logout failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "logged out"})
	}
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Restart(r.Context()); err != nil {
		s.log.Error("restart failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "client restarting, give it a few seconds"})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reconnect(r.Context()); err != nil {
		s.log.Error("reconnect failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "reconnecting"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteSession(r.Context()); err != nil {
		s.log.Error("session delete failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "session deleted, scan the QR code to pair again"})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
