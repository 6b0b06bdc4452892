package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// StartLiveChat opens a live-chat session for the user and returns its
// id. Any stale active session for the same user is ended first in the
// same transaction, so at most one active row per user ever exists.
func (s *Store) StartLiveChat(userID int64, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`UPDATE live_chats SET active = 0, ended_at = ? WHERE user_id = ? AND active = 1`,
		now, userID,
	); err != nil {
		return 0, fmt.Errorf("failed to end stale live chats: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO live_chats (user_id, username, active, started_at) VALUES (?, ?, 1, ?)`,
		userID, username, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start live chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read live chat id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit live chat: %w", err)
	}
	return id, nil
}

// ActiveLiveChat returns the user's active session, nil when the bot
// owns the conversation.
func (s *Store) ActiveLiveChat(userID int64) (*model.LiveChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lc model.LiveChatSession
	var username sql.NullString
	var active int
	var startedAt int64
	var endedAt sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, user_id, username, active, started_at, ended_at
		 FROM live_chats WHERE user_id = ? AND active = 1 ORDER BY id DESC LIMIT 1`,
		userID,
	).Scan(&lc.ID, &lc.UserID, &username, &active, &startedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query live chat: %w", err)
	}
	lc.Username = username.String
	lc.Active = active != 0
	lc.StartedAt = time.Unix(startedAt, 0).UTC()
	lc.EndedAt = unixOrZero(endedAt)
	return &lc, nil
}

// GetLiveChat returns one session by id, nil when it does not exist.
func (s *Store) GetLiveChat(id int64) (*model.LiveChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lc model.LiveChatSession
	var username sql.NullString
	var active int
	var startedAt int64
	var endedAt sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, user_id, username, active, started_at, ended_at FROM live_chats WHERE id = ?`,
		id,
	).Scan(&lc.ID, &lc.UserID, &username, &active, &startedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query live chat: %w", err)
	}
	lc.Username = username.String
	lc.Active = active != 0
	lc.StartedAt = time.Unix(startedAt, 0).UTC()
	lc.EndedAt = unixOrZero(endedAt)
	return &lc, nil
}

// EndLiveChat deactivates one session. Ending an already-ended session
// is a no-op, reported by the return value.
func (s *Store) EndLiveChat(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE live_chats SET active = 0, ended_at = ? WHERE id = ? AND active = 1`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to end live chat: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListActiveLiveChats returns all active sessions, oldest first.
func (s *Store) ListActiveLiveChats() ([]model.LiveChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, username, active, started_at, ended_at
		 FROM live_chats WHERE active = 1 ORDER BY started_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query live chats: %w", err)
	}
	defer rows.Close()

	var sessions []model.LiveChatSession
	for rows.Next() {
		var lc model.LiveChatSession
		var username sql.NullString
		var active int
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&lc.ID, &lc.UserID, &username, &active, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan live chat: %w", err)
		}
		lc.Username = username.String
		lc.Active = active != 0
		lc.StartedAt = time.Unix(startedAt, 0).UTC()
		lc.EndedAt = unixOrZero(endedAt)
		sessions = append(sessions, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating live chats: %w", err)
	}
	return sessions, nil
}

// EndAllLiveChats deactivates every active session and returns how
// many were ended. The bot runs this once on startup so sessions left
// over from a crash cannot silence users forever.
func (s *Store) EndAllLiveChats() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE live_chats SET active = 0, ended_at = ? WHERE active = 1`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to end live chats: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
