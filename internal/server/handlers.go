package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

const (
	defaultHistorySize = 20
	maxMessageBytes    = 1 << 20
)

type messageRequest struct {
	Text string `json:"text"`
	// Note optionally makes a vault note the active note before the turn.
	Note string `json:"note,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Controller.State())
}

// handleMessage runs one turn and answers with the resulting state.
// Progress is visible on /ws while the turn streams.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Note != "" {
		if err := s.app.OpenNote(req.Note); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open note: %v", err))
			return
		}
	}

	ctrl := s.app.Controller
	if ctrl.Streaming() {
		writeError(w, http.StatusConflict, "a reply is already streaming")
		return
	}
	ctrl.OnUserMessage(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, ctrl.State())
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	s.app.Controller.ResetChatAndStartNewConversation()
	writeJSON(w, http.StatusOK, s.app.Controller.State())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := defaultHistorySize
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	records, err := s.app.Controller.History(r.Context(), n)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	summaries := make([]models.ConversationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Metrics.Snapshot())
}

// handleOpenConversation is the deep-link handler. The id comes from
// chatId or, failing that, id.
func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("chatId"))
	if id == "" {
		id = strings.TrimSpace(q.Get("id"))
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	if !s.app.Controller.OpenConversationByID(r.Context(), id) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Controller.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
