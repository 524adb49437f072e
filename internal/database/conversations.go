package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"parley/internal/models"
)

// StartOrResumeConversation returns the conversation for a session, creating
// it when none exists yet.
func (db *DB) StartOrResumeConversation(sessionID, backend string) (models.Conversation, error) {
	conv, err := db.GetConversationBySession(sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	_, err = db.conn.Exec(`
		INSERT INTO conversations (session_id, title, backend)
		VALUES (?, 'New Chat', ?)`, sessionID, backend)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return db.GetConversationBySession(sessionID)
}

func (db *DB) GetConversationBySession(sessionID string) (models.Conversation, error) {
	var c models.Conversation
	var createdAt, updatedAt string
	err := db.conn.QueryRow(`
		SELECT id, session_id, title, backend, total_messages, created_at, updated_at
		FROM conversations WHERE session_id = ?`, sessionID).Scan(
		&c.ID, &c.SessionID, &c.Title, &c.Backend, &c.TotalMessages, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt, _ = parseTime(createdAt)
	c.UpdatedAt, _ = parseTime(updatedAt)
	return c, nil
}

// AddMessage appends one turn to a conversation, bumping its message counter
// and timestamp. The first user message also becomes the conversation title.
func (db *DB) AddMessage(conversationID int64, role, content string, responseTime float64) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO messages (conversation_id, role, content, response_time)
		VALUES (?, ?, ?, ?)`, conversationID, role, content, responseTime)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		UPDATE conversations
		SET total_messages = total_messages + 1, updated_at = datetime('now')
		WHERE id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("update conversation: %w", err)
	}

	if role == "user" {
		_, err = tx.Exec(`
			UPDATE conversations SET title = ?
			WHERE id = ? AND total_messages = 1`, generateTitle(content), conversationID)
		if err != nil {
			return 0, fmt.Errorf("update title: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetMessages returns a conversation's messages in chronological order.
func (db *DB) GetMessages(conversationID int64) ([]models.ChatMessage, error) {
	rows, err := db.conn.Query(`
		SELECT id, conversation_id, role, content, response_time, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ResponseTime, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = parseTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// RecentConversations lists conversations by last activity, newest first.
func (db *DB) RecentConversations(limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, session_id, title, backend, total_messages, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.Backend, &c.TotalMessages, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = parseTime(createdAt)
		c.UpdatedAt, _ = parseTime(updatedAt)
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation; messages and feedback cascade.
func (db *DB) DeleteConversation(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// generateTitle derives a conversation title from the first user message,
// cut at a word boundary around 50 characters.
func generateTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "New Chat"
	}
	if len(content) <= 50 {
		return content
	}
	cut := content[:50]
	if idx := strings.LastIndex(cut, " "); idx > 20 {
		cut = cut[:idx]
	}
	return cut + "..."
}
