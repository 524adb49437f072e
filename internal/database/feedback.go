package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"parley/internal/models"
)

// AddFeedback records one feedback event and updates the (backend, style)
// performance aggregate in the same transaction, so the two tables can never
// disagree.
func (db *DB) AddFeedback(rec models.FeedbackRecord) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, rec.ConversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("conversation %d not found", rec.ConversationID)
	}
	if err != nil {
		return 0, err
	}

	var contextJSON any
	if len(rec.Context) > 0 {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return 0, fmt.Errorf("marshal feedback context: %w", err)
		}
		contextJSON = string(data)
	}

	var rating any
	if rec.Kind == models.FeedbackRating && rec.Rating > 0 {
		rating = rec.Rating
	}

	result, err := tx.Exec(`
		INSERT INTO message_feedback
			(message_id, conversation_id, feedback_type, rating, feedback_text,
			 backend, style, response_time, session_id, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.ConversationID, rec.Kind, rating, rec.Text,
		rec.Backend, rec.Style, rec.ResponseTime, rec.SessionID, contextJSON)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := db.updatePerformance(tx, rec); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// updatePerformance folds one feedback event into the running aggregate for
// its (backend, style) pair and recomputes the composite score.
func (db *DB) updatePerformance(tx *sql.Tx, rec models.FeedbackRecord) error {
	var p models.ModelPerformance
	err := tx.QueryRow(`
		SELECT avg_rating, total_feedback, positive_feedback, negative_feedback, avg_response_time
		FROM model_performance WHERE backend = ? AND style = ?`,
		rec.Backend, rec.Style).Scan(
		&p.AvgRating, &p.TotalFeedback, &p.PositiveCount, &p.NegativeCount, &p.AvgResponseTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	prev := p.TotalFeedback
	p.TotalFeedback++

	// Only explicit thumbs move the approval counters; numeric ratings feed
	// the average instead, so one event never counts twice.
	switch rec.Kind {
	case models.FeedbackThumbsUp:
		p.PositiveCount++
	case models.FeedbackThumbsDown:
		p.NegativeCount++
	}

	if rec.Kind == models.FeedbackRating && rec.Rating > 0 {
		p.AvgRating = (p.AvgRating*float64(prev) + float64(rec.Rating)) / float64(p.TotalFeedback)
	} else if prev == 0 {
		// No numeric signal yet: start from a neutral midpoint rather than zero.
		p.AvgRating = 3.0
	}

	if rec.ResponseTime > 0 {
		p.AvgResponseTime = (p.AvgResponseTime*float64(prev) + rec.ResponseTime) / float64(p.TotalFeedback)
	}

	p.Score = db.scoring.Score(p.AvgRating, p.PositiveCount, p.TotalFeedback)

	_, err = tx.Exec(`
		INSERT INTO model_performance
			(backend, style, avg_rating, total_feedback, positive_feedback,
			 negative_feedback, avg_response_time, performance_score, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(backend, style) DO UPDATE SET
			avg_rating        = excluded.avg_rating,
			total_feedback    = excluded.total_feedback,
			positive_feedback = excluded.positive_feedback,
			negative_feedback = excluded.negative_feedback,
			avg_response_time = excluded.avg_response_time,
			performance_score = excluded.performance_score,
			last_updated      = excluded.last_updated`,
		rec.Backend, rec.Style, p.AvgRating, p.TotalFeedback, p.PositiveCount,
		p.NegativeCount, p.AvgResponseTime, p.Score)
	if err != nil {
		return fmt.Errorf("upsert performance: %w", err)
	}
	return nil
}

// Score computes the composite performance score in [0, 1]: quality dominates,
// approval rate helps, and sample size saturates at the engagement cap.
func (s Scoring) Score(avgRating float64, positive, total int) float64 {
	if total == 0 {
		return 0
	}
	engagement := float64(total) / float64(s.EngagementCap)
	if engagement > 1 {
		engagement = 1
	}
	return s.RatingWeight*(avgRating/5.0) +
		s.PositiveWeight*(float64(positive)/float64(total)) +
		s.EngagementWeight*engagement
}

// BestBackendForStyle returns the highest-scoring backend for a style among
// pairs with enough feedback to trust. ok is false when no pair qualifies.
func (db *DB) BestBackendForStyle(style string) (string, bool, error) {
	var backend string
	err := db.conn.QueryRow(`
		SELECT backend FROM model_performance
		WHERE style = ? AND total_feedback >= ?
		ORDER BY performance_score DESC, total_feedback DESC
		LIMIT 1`, style, db.scoring.MinFeedbackForSelection).Scan(&backend)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return backend, true, nil
}

// PerformanceRecords returns every (backend, style) aggregate, best first.
func (db *DB) PerformanceRecords() ([]models.ModelPerformance, error) {
	rows, err := db.conn.Query(`
		SELECT id, backend, style, avg_rating, total_feedback, positive_feedback,
		       negative_feedback, avg_response_time, performance_score, last_updated
		FROM model_performance
		ORDER BY performance_score DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ModelPerformance
	for rows.Next() {
		var p models.ModelPerformance
		var updated string
		if err := rows.Scan(&p.ID, &p.Backend, &p.Style, &p.AvgRating, &p.TotalFeedback,
			&p.PositiveCount, &p.NegativeCount, &p.AvgResponseTime, &p.Score, &updated); err != nil {
			return nil, err
		}
		p.LastUpdated, _ = parseTime(updated)
		records = append(records, p)
	}
	return records, rows.Err()
}

// LearningInsights classifies every tracked (backend, style) pair. Pairs with
// plenty of data get a verdict; thin pairs get flagged as needing more.
func (db *DB) LearningInsights() ([]models.LearningInsight, error) {
	records, err := db.PerformanceRecords()
	if err != nil {
		return nil, err
	}

	var insights []models.LearningInsight
	for _, p := range records {
		switch {
		case p.Score < 0.5 && p.TotalFeedback >= db.scoring.UnderperformerMinCount:
			insights = append(insights, models.LearningInsight{
				Type:          "underperforming_model",
				Severity:      "high",
				Backend:       p.Backend,
				Style:         p.Style,
				Score:         p.Score,
				FeedbackCount: p.TotalFeedback,
				Message: fmt.Sprintf("%s performs poorly for %s conversations (score %.2f)",
					p.Backend, p.Style, p.Score),
				Recommendation: fmt.Sprintf("Consider routing %s conversations to a different backend", p.Style),
			})
		case p.Score > 0.8 && p.TotalFeedback >= db.scoring.HighPerformerMinCount:
			insights = append(insights, models.LearningInsight{
				Type:          "high_performer",
				Severity:      "info",
				Backend:       p.Backend,
				Style:         p.Style,
				Score:         p.Score,
				FeedbackCount: p.TotalFeedback,
				Message: fmt.Sprintf("%s excels at %s conversations (score %.2f)",
					p.Backend, p.Style, p.Score),
				Recommendation: fmt.Sprintf("Prefer %s for %s conversations", p.Backend, p.Style),
			})
		case p.TotalFeedback < db.scoring.MinFeedbackForSelection:
			insights = append(insights, models.LearningInsight{
				Type:          "insufficient_data",
				Severity:      "medium",
				Backend:       p.Backend,
				Style:         p.Style,
				Score:         p.Score,
				FeedbackCount: p.TotalFeedback,
				Message: fmt.Sprintf("Not enough feedback yet for %s with %s style (%d records)",
					p.Backend, p.Style, p.TotalFeedback),
				Recommendation: "Collect more feedback before drawing conclusions",
			})
		}
	}
	return insights, nil
}

// FeedbackAnalytics summarizes stored feedback for the dashboard.
type FeedbackAnalytics struct {
	TotalFeedback int                       `json:"total_feedback"`
	AvgRating     float64                   `json:"avg_rating"`
	PositiveRate  float64                   `json:"positive_rate"`
	ByKind        map[string]int            `json:"by_kind"`
	Performance   []models.ModelPerformance `json:"model_performance"`
	DailyTrend    []DailyFeedback           `json:"daily_trend"`
}

// DailyFeedback is one day's feedback volume and average rating.
type DailyFeedback struct {
	Date      string  `json:"date"`
	Count     int     `json:"count"`
	AvgRating float64 `json:"avg_rating"`
}

// Analytics aggregates overall feedback stats, per-pair performance, and a
// seven-day trend.
func (db *DB) Analytics() (FeedbackAnalytics, error) {
	a := FeedbackAnalytics{ByKind: make(map[string]int)}

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(AVG(rating), 0),
		       COALESCE(AVG(CASE
		           WHEN feedback_type = 'thumbs_up' OR rating >= 4 THEN 1.0
		           ELSE 0.0
		       END), 0)
		FROM message_feedback`).Scan(&a.TotalFeedback, &a.AvgRating, &a.PositiveRate)
	if err != nil {
		return a, err
	}

	rows, err := db.conn.Query(`
		SELECT feedback_type, COUNT(*) FROM message_feedback GROUP BY feedback_type`)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return a, err
		}
		a.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return a, err
	}

	a.Performance, err = db.PerformanceRecords()
	if err != nil {
		return a, err
	}

	trend, err := db.conn.Query(`
		SELECT date(created_at), COUNT(*), COALESCE(AVG(rating), 0)
		FROM message_feedback
		WHERE created_at >= datetime('now', '-7 days')
		GROUP BY date(created_at)
		ORDER BY date(created_at)`)
	if err != nil {
		return a, err
	}
	defer trend.Close()
	for trend.Next() {
		var d DailyFeedback
		if err := trend.Scan(&d.Date, &d.Count, &d.AvgRating); err != nil {
			return a, err
		}
		a.DailyTrend = append(a.DailyTrend, d)
	}
	return a, trend.Err()
}
