package models

import "time"

// Feedback kinds accepted from users.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
	FeedbackRating     = "rating"
	FeedbackDetailed   = "detailed"
)

type Conversation struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Title         string    `json:"title"`
	Backend       string    `json:"backend"`
	TotalMessages int       `json:"total_messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ResponseTime   float64   `json:"response_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackRecord is one user feedback event. Rows are append-only; they are
// never updated or deleted individually (conversation deletion cascades).
type FeedbackRecord struct {
	ID             int64          `json:"id"`
	MessageID      int64          `json:"message_id"`
	ConversationID int64          `json:"conversation_id"`
	Kind           string         `json:"feedback_type"`
	Rating         int            `json:"rating,omitempty"` // 1-5, only for kind "rating"
	Text           string         `json:"feedback_text,omitempty"`
	Backend        string         `json:"backend"`
	Style          string         `json:"style"`
	ResponseTime   float64        `json:"response_time"`
	SessionID      string         `json:"session_id"`
	Context        map[string]any `json:"context,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ModelPerformance is the running aggregate for one (backend, style) pair,
// upserted transactionally with each new FeedbackRecord.
type ModelPerformance struct {
	ID              int64     `json:"id"`
	Backend         string    `json:"backend"`
	Style           string    `json:"style"`
	AvgRating       float64   `json:"avg_rating"`
	TotalFeedback   int       `json:"total_feedback"`
	PositiveCount   int       `json:"positive_feedback"`
	NegativeCount   int       `json:"negative_feedback"`
	AvgResponseTime float64   `json:"avg_response_time"`
	Score           float64   `json:"performance_score"` // composite, in [0,1]
	LastUpdated     time.Time `json:"last_updated"`
}

// LearningInsight classifies one (backend, style) pair by how it is doing.
type LearningInsight struct {
	Type           string  `json:"type"`     // underperforming_model | high_performer | insufficient_data
	Severity       string  `json:"severity"` // high | info | medium
	Backend        string  `json:"backend"`
	Style          string  `json:"style"`
	Score          float64 `json:"score"`
	FeedbackCount  int     `json:"feedback_count"`
	Message        string  `json:"message"`
	Recommendation string  `json:"recommendation"`
}
