// internal/server/server.go
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
	"github.com/qwennnzim-del/gen2-ai/internal/conversation"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// maxBodyBytes bounds a chat request: a few attachments at attach.MaxSize
// once base64 encoded.
const maxBodyBytes = 4 * attach.MaxSize * 4 / 3

// Server exposes a Controller over a JSON HTTP API and a WebSocket event
// stream.
type Server struct {
	ctrl *conversation.Controller
	hub  *Hub
	mux  *http.ServeMux
}

// NewServer creates a Server for ctrl. Controller events are forwarded to
// every connected WebSocket client.
func NewServer(ctrl *conversation.Controller) *Server {
	s := &Server{
		ctrl: ctrl,
		hub:  NewHub(),
		mux:  http.NewServeMux(),
	}
	ctrl.Subscribe(s.hub.Publish)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/select", s.handleSelect)
	s.mux.HandleFunc("DELETE /api/sessions", s.handleDeleteAll)
	s.mux.HandleFunc("POST /api/chat/new", s.handleNewChat)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	State           conversation.State `json:"state"`
	ActiveSessionID types.SessionID    `json:"active_session_id,omitempty"`
	Messages        []types.Message    `json:"messages"`
	Settings        types.AppSettings  `json:"settings"`
}

func (s *Server) currentState() stateResponse {
	return stateResponse{
		State:           s.ctrl.State(),
		ActiveSessionID: s.ctrl.ActiveSessionID(),
		Messages:        s.ctrl.Messages(),
		Settings:        s.ctrl.Settings(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentState())
}

type sessionSummary struct {
	ID           types.SessionID `json:"id"`
	Title        string          `json:"title"`
	UpdatedAt    string          `json:"updated_at"`
	MessageCount int             `json:"message_count"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.ctrl.Sessions()
	result := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			UpdatedAt:    sess.UpdatedAt.Format(time.RFC3339),
			MessageCount: len(sess.Messages),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ctrl.Session(types.SessionID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SelectSession(types.SessionID(r.PathValue("id"))); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	s.ctrl.DeleteAllHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StartNewChat()
	w.WriteHeader(http.StatusNoContent)
}

// attachmentRequest carries one file; Data is standard base64.
type attachmentRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Text        string              `json:"text"`
	Attachments []attachmentRequest `json:"attachments"`
}

type chatResponse struct {
	SessionID types.SessionID `json:"session_id"`
	Message   types.Message   `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	atts := make([]types.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid base64 in attachment "+a.Name)
			return
		}
		mimeType := a.MimeType
		if mimeType == "" {
			mimeType = attach.DetectMimeType(a.Name, data)
		}
		att, err := attach.Encode(a.Name, mimeType, data)
		if errors.Is(err, attach.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		} else if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		atts = append(atts, att)
	}

	reply, err := s.ctrl.Send(r.Context(), req.Text, atts)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, conversation.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("chat send failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: reply.SessionID, Message: reply.Message})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

// settingsRequest is the JSON body for PUT /api/settings. Omitted fields
// are left unchanged. Model accepts an identifier, label or alias.
type settingsRequest struct {
	Model    *string `json:"model"`
	Language *string `json:"language"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	if req.Model != nil {
		m, ok := types.ParseModel(*req.Model)
		if !ok {
			writeError(w, http.StatusBadRequest, conversation.ErrInvalidModel.Error())
			return
		}
		if err := s.ctrl.SetModel(ctx, m); err != nil {
			writeSettingsError(w, err)
			return
		}
	}
	if req.Language != nil {
		if err := s.ctrl.SetLanguage(ctx, types.Language(*req.Language)); err != nil {
			writeSettingsError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

func writeSettingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrInvalidModel) || errors.Is(err, conversation.ErrInvalidLanguage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("update settings failed", "error", err)
	writeError(w, http.StatusInternalServerError, "settings not saved")
}
