package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Scoring holds the constants behind the composite performance score and the
// insight thresholds. The defaults reflect product heuristics: quality
// dominates, positivity helps, and sheer volume saturates at the cap.
type Scoring struct {
	RatingWeight     float64
	PositiveWeight   float64
	EngagementWeight float64
	EngagementCap    int

	MinFeedbackForSelection int
	UnderperformerMinCount  int
	HighPerformerMinCount   int
}

func DefaultScoring() Scoring {
	return Scoring{
		RatingWeight:            0.6,
		PositiveWeight:          0.3,
		EngagementWeight:        0.1,
		EngagementCap:           100,
		MinFeedbackForSelection: 3,
		UnderperformerMinCount:  5,
		HighPerformerMinCount:   10,
	}
}

type DB struct {
	conn    *sql.DB
	path    string
	scoring Scoring
}

func New(path string, scoring Scoring) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(2)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path, scoring: scoring}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", s)
}

func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT    NOT NULL UNIQUE,
			title          TEXT    NOT NULL DEFAULT 'New Chat',
			backend        TEXT    NOT NULL DEFAULT 'Gemini Pro',
			total_messages INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at     TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT    NOT NULL CHECK (role IN ('user', 'assistant')),
			content         TEXT    NOT NULL,
			response_time   REAL    NOT NULL DEFAULT 0,
			created_at      TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS message_feedback (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id      INTEGER NOT NULL,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			feedback_type   TEXT    NOT NULL CHECK (feedback_type IN ('thumbs_up', 'thumbs_down', 'rating', 'detailed')),
			rating          INTEGER CHECK (rating BETWEEN 1 AND 5),
			feedback_text   TEXT,
			backend         TEXT    NOT NULL,
			style           TEXT    NOT NULL DEFAULT 'helpful',
			response_time   REAL,
			session_id      TEXT,
			context         TEXT,
			created_at      TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_backend ON message_feedback(backend)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_style ON message_feedback(style)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_created ON message_feedback(created_at)`,
		`CREATE TABLE IF NOT EXISTS model_performance (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			backend           TEXT NOT NULL,
			style             TEXT NOT NULL,
			avg_rating        REAL    NOT NULL DEFAULT 0,
			total_feedback    INTEGER NOT NULL DEFAULT 0,
			positive_feedback INTEGER NOT NULL DEFAULT 0,
			negative_feedback INTEGER NOT NULL DEFAULT 0,
			avg_response_time REAL    NOT NULL DEFAULT 0,
			performance_score REAL    NOT NULL DEFAULT 0,
			last_updated      TEXT    NOT NULL DEFAULT (datetime('now')),
			UNIQUE(backend, style)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_score ON model_performance(performance_score DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}
