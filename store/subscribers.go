package store

import (
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// EnsureSubscriber registers a user on first contact, subscribed by
// default, and keeps the stored username fresh. An explicit
// unsubscribe is never undone here.
func (s *Store) EnsureSubscriber(userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO subscribers (user_id, username, subscribed, created_at)
		 VALUES (?, ?, 1, ?)`,
		userID, username, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure subscriber: %w", err)
	}

	if username != "" {
		if _, err := s.db.Exec(
			`UPDATE subscribers SET username = ? WHERE user_id = ? AND username != ?`,
			username, userID, username,
		); err != nil {
			return fmt.Errorf("failed to refresh subscriber username: %w", err)
		}
	}
	return nil
}

// SetSubscribed flips a user's broadcast opt-in state.
func (s *Store) SetSubscribed(userID int64, subscribed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE subscribers SET subscribed = ? WHERE user_id = ?`,
		boolToInt(subscribed), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	// A /stop before any stored message still has to stick.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.db.Exec(
			`INSERT INTO subscribers (user_id, subscribed, created_at) VALUES (?, ?, ?)`,
			userID, boolToInt(subscribed), time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert subscriber: %w", err)
		}
	}
	return nil
}

// IsSubscribed reports a user's opt-in state. Unknown users count as
// unsubscribed until their first message registers them.
func (s *Store) IsSubscribed(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subscribed int
	err := s.db.QueryRow(
		`SELECT subscribed FROM subscribers WHERE user_id = ?`, userID,
	).Scan(&subscribed)
	if err != nil {
		return false, nil
	}
	return subscribed != 0, nil
}

// CountSubscribers counts currently subscribed users.
func (s *Store) CountSubscribers() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM subscribers WHERE subscribed = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return n, nil
}

// RecipientIDs resolves a broadcast audience to concrete user ids.
// Activity windows are measured against the conversations table.
func (s *Store) RecipientIDs(audience string, now time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT user_id FROM subscribers WHERE subscribed = 1`
	var args []interface{}

	switch audience {
	case model.AudienceAll:
	case model.AudienceActive7d:
		query += ` AND user_id IN (SELECT DISTINCT user_id FROM conversations WHERE created_at >= ?)`
		args = append(args, now.AddDate(0, 0, -7).Unix())
	case model.AudienceActive30d:
		query += ` AND user_id IN (SELECT DISTINCT user_id FROM conversations WHERE created_at >= ?)`
		args = append(args, now.AddDate(0, 0, -30).Unix())
	default:
		return nil, fmt.Errorf("unknown audience %q", audience)
	}
	query += ` ORDER BY user_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return ids, nil
}
