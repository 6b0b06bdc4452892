package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

// SaveMessage appends one conversation message and returns its cursor
// id. When an archive mirror is attached the write is copied there in
// the background; mirror failures are logged, never surfaced.
func (s *Store) SaveMessage(userID int64, username string, role model.Role, text string, sources []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO conversations (user_id, username, role, text, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, username, string(role), text, encodeSources(sources), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}

	if s.archive != nil {
		msg := model.Message{
			ID:        id,
			UserID:    userID,
			Username:  username,
			Role:      role,
			Text:      text,
			Sources:   sources,
			CreatedAt: now,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.archive.SaveMessage(ctx, msg); err != nil {
				log.Log.Warnf("[Store] ⚠️ archive mirror write failed | User: %d | Error: %v", userID, err)
			}
		}()
	}

	return id, nil
}

// RecentMessages returns the user's last limit messages in cursor
// order, oldest first.
func (s *Store) RecentMessages(userID int64, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, username, role, text, sources, created_at
		 FROM conversations WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// the query walks backwards from the newest row
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesAfter returns up to limit messages with id greater than
// afterID, oldest first. The summarizer folds these into the summary.
func (s *Store) MessagesAfter(userID, afterID int64, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, username, role, text, sources, created_at
		 FROM conversations WHERE user_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		userID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// CountMessagesAfter counts messages with id greater than afterID, the
// unsummarized backlog for one user.
func (s *Store) CountMessagesAfter(userID, afterID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM conversations WHERE user_id = ? AND id > ?`,
		userID, afterID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// CountUserMessagesSince counts messages the user authored at or after
// the given instant. The referral engagement check reads this.
func (s *Store) CountUserMessagesSince(userID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM conversations WHERE user_id = ? AND role = 'user' AND created_at >= ?`,
		userID, since.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return n, nil
}

// UserHistory returns a user's full conversation, oldest first.
func (s *Store) UserHistory(userID int64) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, username, role, text, sources, created_at
		 FROM conversations WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ConversationListItem is one row of the admin conversation overview.
type ConversationListItem struct {
	UserID       int64
	Username     string
	MessageCount int
	LastText     string
	LastAt       time.Time
}

// ConversationOverview lists every user with messages, most recently
// active first.
func (s *Store) ConversationOverview() ([]ConversationListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT c.user_id,
		        COALESCE(MAX(c.username), ''),
		        COUNT(*),
		        (SELECT text FROM conversations WHERE user_id = c.user_id ORDER BY id DESC LIMIT 1),
		        MAX(c.created_at)
		 FROM conversations c
		 GROUP BY c.user_id
		 ORDER BY MAX(c.id) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation overview: %w", err)
	}
	defer rows.Close()

	var items []ConversationListItem
	for rows.Next() {
		var it ConversationListItem
		var lastAt int64
		if err := rows.Scan(&it.UserID, &it.Username, &it.MessageCount, &it.LastText, &lastAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation overview: %w", err)
		}
		it.LastAt = time.Unix(lastAt, 0).UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation overview: %w", err)
	}
	return items, nil
}

// DayCount is one day's message count for the activity chart.
type DayCount struct {
	Date  string // "YYYY-MM-DD"
	Count int
}

// MessageCountsByDay returns per-day message totals for the last days
// days, oldest first. Days without traffic are filled with zero.
func (s *Store) MessageCountsByDay(days int) ([]DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	rows, err := s.db.Query(
		`SELECT date(created_at, 'unixepoch'), COUNT(*)
		 FROM conversations WHERE created_at >= ?
		 GROUP BY date(created_at, 'unixepoch')`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	byDate := make(map[string]int)
	for rows.Next() {
		var date string
		var n int
		if err := rows.Scan(&date, &n); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		byDate[date] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily counts: %w", err)
	}

	counts := make([]DayCount, 0, days)
	for i := 0; i < days; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		counts = append(counts, DayCount{Date: date, Count: byDate[date]})
	}
	return counts, nil
}

// CountMessages returns the total number of stored messages.
func (s *Store) CountMessages() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// CountConversations returns the number of distinct users with at
// least one message.
func (s *Store) CountConversations() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT user_id) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var username, sources sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &username, &role, &m.Text, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Username = username.String
		m.Role = model.Role(role)
		m.Sources = decodeSources(sources)
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
