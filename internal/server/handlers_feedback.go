package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"parley/internal/models"
)

var feedbackReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parley_feedback_total",
	Help: "Feedback events received, by kind and backend.",
}, []string{"kind", "backend"})

type feedbackRequest struct {
	MessageID      int64          `json:"message_id"`
	ConversationID int64          `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	Kind           string         `json:"feedback_type"`
	Rating         int            `json:"rating"`
	Text           string         `json:"feedback_text"`
	Backend        string         `json:"backend"`
	Style          string         `json:"style"`
	ResponseTime   float64        `json:"response_time"`
	Context        map[string]any `json:"context"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", 400)
		return
	}

	switch req.Kind {
	case models.FeedbackThumbsUp, models.FeedbackThumbsDown, models.FeedbackRating, models.FeedbackDetailed:
	default:
		jsonError(w, "Invalid feedback_type", 400)
		return
	}
	if req.Kind == models.FeedbackRating && (req.Rating < 1 || req.Rating > 5) {
		jsonError(w, "rating must be between 1 and 5", 400)
		return
	}
	// A stray rating on a thumbs/detailed payload carries no meaning.
	if req.Kind != models.FeedbackRating {
		req.Rating = 0
	}
	if req.Backend == "" {
		jsonError(w, "backend is required", 400)
		return
	}

	if req.ConversationID == 0 {
		if req.SessionID == "" {
			jsonError(w, "conversation_id or session_id is required", 400)
			return
		}
		conv, err := s.db.GetConversationBySession(req.SessionID)
		if err != nil {
			jsonError(w, "Conversation not found", 404)
			return
		}
		req.ConversationID = conv.ID
	}

	style := req.Style
	if style == "" {
		style = "helpful"
	}

	id, err := s.db.AddFeedback(models.FeedbackRecord{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		Kind:           req.Kind,
		Rating:         req.Rating,
		Text:           req.Text,
		Backend:        req.Backend,
		Style:          style,
		ResponseTime:   req.ResponseTime,
		SessionID:      req.SessionID,
		Context:        req.Context,
	})
	if err != nil {
		slog.Error("failed to store feedback", "conversation", req.ConversationID, "error", err)
		jsonError(w, "Failed to store feedback", 500)
		return
	}

	// New scores may change backend selection; drop the cached choices.
	s.learner.Invalidate()
	feedbackReceived.WithLabelValues(req.Kind, req.Backend).Inc()

	jsonResponse(w, map[string]any{"feedback_id": id, "status": "recorded"})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	feedback, err := s.db.Analytics()
	if err != nil {
		slog.Error("failed to compute analytics", "error", err)
		jsonError(w, "Failed to compute analytics", 500)
		return
	}

	jsonResponse(w, map[string]any{
		"service":  s.ai.Analytics(),
		"feedback": feedback,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	recs, err := s.learner.Recommendations()
	if err != nil {
		slog.Error("failed to compute insights", "error", err)
		jsonError(w, "Failed to compute insights", 500)
		return
	}
	jsonResponse(w, recs)
}
