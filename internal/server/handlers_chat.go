package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"parley/internal/ai"
)

type chatRequest struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"session_id"`
	Style       string   `json:"style"`
	Backend     string   `json:"backend"`
	Temperature *float64 `json:"temperature"`
}

type chatResponse struct {
	Response       string  `json:"response"`
	SessionID      string  `json:"session_id"`
	ConversationID int64   `json:"conversation_id"`
	MessageID      int64   `json:"message_id,omitempty"`
	Backend        string  `json:"backend"`
	Style          string  `json:"style"`
	ResponseTime   float64 `json:"response_time"`
	TokensUsed     int     `json:"tokens_used"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", 400)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		jsonError(w, "message is required", 400)
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		jsonError(w, "temperature must be between 0 and 2", 400)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	style := ai.ParseStyle(req.Style)

	conv, err := s.db.StartOrResumeConversation(sessionID, s.ai.Registry().Default())
	if err != nil {
		slog.Error("failed to open conversation", "session", sessionID, "error", err)
		jsonError(w, "Failed to open conversation", 500)
		return
	}

	history, err := s.db.GetMessages(conv.ID)
	if err != nil {
		slog.Error("failed to load history", "conversation", conv.ID, "error", err)
		jsonError(w, "Failed to load conversation history", 500)
		return
	}

	messages := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: req.Message})

	if _, err := s.db.AddMessage(conv.ID, ai.RoleUser, req.Message, 0); err != nil {
		slog.Error("failed to store user message", "conversation", conv.ID, "error", err)
		jsonError(w, "Failed to store message", 500)
		return
	}

	res := s.ai.GenerateResponse(r.Context(), messages, sessionID, style, req.Backend, req.Temperature)
	if !res.Success {
		slog.Warn("generation failed", "session", sessionID, "kind", res.ErrorKind, "error", res.ErrorMessage)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error":      res.ErrorMessage,
			"error_kind": res.ErrorKind,
			"session_id": sessionID,
		})
		return
	}

	// The response already exists; losing the stored copy is not worth
	// failing the request over.
	messageID, err := s.db.AddMessage(conv.ID, ai.RoleAssistant, res.Content, res.ResponseTime)
	if err != nil {
		slog.Error("failed to store assistant message", "conversation", conv.ID, "error", err)
	}

	jsonResponse(w, chatResponse{
		Response:       res.Content,
		SessionID:      sessionID,
		ConversationID: conv.ID,
		MessageID:      messageID,
		Backend:        res.Backend,
		Style:          string(style),
		ResponseTime:   res.ResponseTime,
		TokensUsed:     res.TokensUsed,
	})
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	conversations, err := s.db.RecentConversations(limit)
	if err != nil {
		slog.Error("failed to list conversations", "error", err)
		jsonError(w, "Failed to list conversations", 500)
		return
	}
	jsonResponse(w, map[string]any{"conversations": conversations})
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, "Invalid conversation id", 400)
		return
	}

	messages, err := s.db.GetMessages(id)
	if err != nil {
		slog.Error("failed to load messages", "conversation", id, "error", err)
		jsonError(w, "Failed to load messages", 500)
		return
	}
	jsonResponse(w, map[string]any{"messages": messages})
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, "Invalid conversation id", 400)
		return
	}

	if err := s.db.DeleteConversation(id); err != nil {
		slog.Error("failed to delete conversation", "conversation", id, "error", err)
		jsonError(w, "Failed to delete conversation", 500)
		return
	}
	jsonResponse(w, map[string]any{"deleted": id})
}
