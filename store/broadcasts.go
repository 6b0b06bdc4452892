package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// CreateBroadcast queues a broadcast job with its resolved recipient
// count and returns its id.
func (s *Store) CreateBroadcast(text, audience string, recipientCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.Exec(
		`INSERT INTO broadcasts (text, audience, recipient_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		text, audience, recipientCount, string(model.BroadcastQueued), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create broadcast: %w", err)
	}
	return res.LastInsertId()
}

// GetBroadcast returns one broadcast, nil when it does not exist.
func (s *Store) GetBroadcast(id int64) (*model.Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b model.Broadcast
	var status string
	var createdAt, updatedAt int64
	err := s.db.QueryRow(
		`SELECT id, text, audience, recipient_count, sent_count, failed_count, status, created_at, updated_at
		 FROM broadcasts WHERE id = ?`, id,
	).Scan(&b.ID, &b.Text, &b.Audience, &b.RecipientCount, &b.SentCount, &b.FailedCount, &status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast: %w", err)
	}
	b.Status = model.BroadcastStatus(status)
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &b, nil
}

// ListBroadcasts returns broadcasts newest first, up to limit.
func (s *Store) ListBroadcasts(limit int) ([]model.Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, text, audience, recipient_count, sent_count, failed_count, status, created_at, updated_at
		 FROM broadcasts ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []model.Broadcast
	for rows.Next() {
		var b model.Broadcast
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&b.ID, &b.Text, &b.Audience, &b.RecipientCount, &b.SentCount, &b.FailedCount, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan broadcast: %w", err)
		}
		b.Status = model.BroadcastStatus(status)
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		b.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		broadcasts = append(broadcasts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broadcasts: %w", err)
	}
	return broadcasts, nil
}

// SetBroadcastStatus moves a broadcast to a new lifecycle state,
// leaving its counters untouched.
func (s *Store) SetBroadcastStatus(id int64, status model.BroadcastStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBroadcast(id, `status = ?`, string(status))
}

// UpdateBroadcastProgress checkpoints the running counters so a crash
// mid-fan-out keeps what was already delivered visible.
func (s *Store) UpdateBroadcastProgress(id int64, sent, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBroadcast(id, `sent_count = ?, failed_count = ?`, sent, failed)
}

// FinishBroadcast records the final counters together with the
// terminal status, completed or failed.
func (s *Store) FinishBroadcast(id int64, status model.BroadcastStatus, sent, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBroadcast(id, `status = ?, sent_count = ?, failed_count = ?`, string(status), sent, failed)
}

func (s *Store) updateBroadcast(id int64, set string, args ...interface{}) error {
	args = append(args, time.Now().Unix(), id)
	res, err := s.db.Exec(
		`UPDATE broadcasts SET `+set+`, updated_at = ? WHERE id = ?`, args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update broadcast: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("broadcast %d not found", id)
	}
	return nil
}
