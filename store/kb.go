package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// CreateKBEntry inserts a knowledge-base entry and returns its id.
func (s *Store) CreateKBEntry(category, title, content string) (int64, error) {
	if category == "" || title == "" {
		return 0, fmt.Errorf("kb entry requires a category and a title")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.Exec(
		`INSERT INTO kb_entries (category, title, content, active, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		category, title, content, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create kb entry: %w", err)
	}
	return res.LastInsertId()
}

// UpdateKBEntry rewrites an entry's fields and bumps updated_at.
func (s *Store) UpdateKBEntry(id int64, category, title, content string, active bool) error {
	if category == "" || title == "" {
		return fmt.Errorf("kb entry requires a category and a title")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE kb_entries SET category = ?, title = ?, content = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		category, title, content, boolToInt(active), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update kb entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("kb entry %d not found", id)
	}
	return nil
}

// DeleteKBEntry removes an entry. Chunks cascade via the foreign key.
func (s *Store) DeleteKBEntry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM kb_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete kb entry: %w", err)
	}
	return nil
}

// GetKBEntry returns one entry, nil when it does not exist.
func (s *Store) GetKBEntry(id int64) (*model.KBEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e model.KBEntry
	var active int
	var createdAt, updatedAt int64
	err := s.db.QueryRow(
		`SELECT id, category, title, content, active, created_at, updated_at
		 FROM kb_entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.Category, &e.Title, &e.Content, &active, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query kb entry: %w", err)
	}
	e.Active = active != 0
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &e, nil
}

// ListKBEntries returns entries ordered by category then title.
func (s *Store) ListKBEntries(activeOnly bool) ([]model.KBEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, category, title, content, active, created_at, updated_at FROM kb_entries`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY category, title`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query kb entries: %w", err)
	}
	defer rows.Close()

	var entries []model.KBEntry
	for rows.Next() {
		var e model.KBEntry
		var active int
		var createdAt, updatedAt int64
		if err := rows.Scan(&e.ID, &e.Category, &e.Title, &e.Content, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kb entry: %w", err)
		}
		e.Active = active != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kb entries: %w", err)
	}
	return entries, nil
}

// CountKBEntries counts entries, optionally only active ones.
func (s *Store) CountKBEntries(activeOnly bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM kb_entries`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	var n int
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count kb entries: %w", err)
	}
	return n, nil
}

// SetKBEntryActive toggles an entry in or out of retrieval.
func (s *Store) SetKBEntryActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE kb_entries SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle kb entry: %w", err)
	}
	return nil
}

// ChunksByEntry returns an entry's chunks ordered by chunk index.
func (s *Store) ChunksByEntry(entryID int64) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryChunks(`WHERE entry_id = ?`, entryID)
}

// AllChunks returns every chunk ordered by entry then chunk index, the
// canonical ordering the index rebuild diffs against.
func (s *Store) AllChunks() ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryChunks(``)
}

func (s *Store) queryChunks(where string, args ...interface{}) ([]model.Chunk, error) {
	query := `SELECT id, entry_id, chunk_index, text, embedding, updated_at FROM kb_chunks ` +
		where + ` ORDER BY entry_id, chunk_index`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var embedding []byte
		var updatedAt int64
		if err := rows.Scan(&c.ID, &c.EntryID, &c.Index, &c.Text, &embedding, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(embedding)
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// ReplaceChunks swaps an entry's chunk set in one transaction. The
// rebuild calls this once per changed entry with freshly embedded
// chunks.
func (s *Store) ReplaceChunks(entryID int64, chunks []model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM kb_chunks WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	now := time.Now().Unix()
	for _, c := range chunks {
		_, err := tx.Exec(
			`INSERT INTO kb_chunks (entry_id, chunk_index, text, embedding, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			entryID, c.Index, c.Text, encodeEmbedding(c.Embedding), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
