package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// GetSummary returns the user's rolling summary, nil when none exists.
func (s *Store) GetSummary(userID int64) (*model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum model.Summary
	var createdAt int64
	err := s.db.QueryRow(
		`SELECT user_id, summary, message_count, last_message_id, created_at
		 FROM conversation_summaries WHERE user_id = ?`, userID,
	).Scan(&sum.UserID, &sum.Text, &sum.MessageCount, &sum.LastMessageID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	sum.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &sum, nil
}

// SaveSummary replaces the user's summary row. lastMessageID must be
// the id of the newest message folded in; it only ever moves forward.
func (s *Store) SaveSummary(userID int64, text string, messageCount int, lastMessageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO conversation_summaries (user_id, summary, message_count, last_message_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, text, messageCount, lastMessageID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}
