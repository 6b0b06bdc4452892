// Package memory maintains the per-user rolling conversation summary.
// Summaries merge recursively: one row per user, updated whenever
// enough unsummarized messages accumulate.
package memory

import (
	"context"
	"sync"

	"github.com/bizbot-il/bizbot/llmutils"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/store"
)

// LockMap hands out non-blocking per-user locks from a bounded map.
// When the map is full, entries not currently held are evicted to make
// room; if nothing can be evicted the lock is simply not granted,
// which skips one summarization round and is harmless.
type LockMap struct {
	mu       sync.Mutex
	held     map[int64]bool
	capacity int
}

func NewLockMap(capacity int) *LockMap {
	return &LockMap{held: make(map[int64]bool), capacity: capacity}
}

// TryLock acquires the user's lock without blocking.
func (m *LockMap) TryLock(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held[userID] {
		return false
	}
	if _, known := m.held[userID]; !known && len(m.held) >= m.capacity {
		for id, busy := range m.held {
			if len(m.held) < m.capacity {
				break
			}
			if !busy {
				delete(m.held, id)
			}
		}
		if len(m.held) >= m.capacity {
			return false
		}
	}
	m.held[userID] = true
	return true
}

// Unlock releases the user's lock. The entry stays cached for reuse
// until eviction.
func (m *LockMap) Unlock(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[userID] = false
}

// Len reports the number of cached entries. Tests only.
func (m *LockMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Summarizer folds conversation windows into the single-row summary.
type Summarizer struct {
	db        *store.Store
	client    llmutils.LLMClient
	model     string
	threshold int
	locks     *LockMap
}

func NewSummarizer(db *store.Store, client llmutils.LLMClient, model string, threshold int) *Summarizer {
	if threshold <= 0 {
		threshold = 10
	}
	return &Summarizer{
		db:        db,
		client:    client,
		model:     model,
		threshold: threshold,
		locks:     NewLockMap(1000),
	}
}

// MaybeSummarize runs one summarization round for the user if enough
// unsummarized messages accumulated. Meant to run as a background task
// after each assistant reply; overlapping calls for the same user are
// dropped by the lock.
func (s *Summarizer) MaybeSummarize(ctx context.Context, userID int64) {
	if !s.locks.TryLock(userID) {
		return
	}
	defer s.locks.Unlock(userID)

	var hwm int64
	var priorText string
	var priorCount int
	summary, err := s.db.GetSummary(userID)
	if err != nil {
		log.Log.Errorf("[Memory] failed to load summary for %d: %v", userID, err)
		return
	}
	if summary != nil {
		hwm = summary.LastMessageID
		priorText = summary.Text
		priorCount = summary.MessageCount
	}

	pending, err := s.db.CountMessagesAfter(userID, hwm)
	if err != nil {
		log.Log.Errorf("[Memory] failed to count unsummarized messages for %d: %v", userID, err)
		return
	}
	if pending < s.threshold {
		return
	}

	msgs, err := s.db.MessagesAfter(userID, hwm, s.threshold)
	if err != nil || len(msgs) == 0 {
		log.Log.Errorf("[Memory] failed to load unsummarized messages for %d: %v", userID, err)
		return
	}

	merged, err := llmutils.MergeSummary(ctx, s.client, s.model, priorText, msgs)
	if err != nil {
		// The high-water mark stays put; the same window retries next
		// round.
		log.Log.Errorf("[Memory] summarization failed for %d: %v", userID, err)
		return
	}

	maxID := msgs[len(msgs)-1].ID
	if err := s.db.SaveSummary(userID, merged, priorCount+len(msgs), maxID); err != nil {
		log.Log.Errorf("[Memory] failed to save summary for %d: %v", userID, err)
		return
	}
	log.Log.Debugf("[Memory] summary for %d advanced to message %d (%d messages folded)",
		userID, maxID, len(msgs))
}

// SummaryText returns the user's current summary text, "" when none.
func (s *Summarizer) SummaryText(userID int64) string {
	summary, err := s.db.GetSummary(userID)
	if err != nil {
		log.Log.Errorf("[Memory] failed to read summary for %d: %v", userID, err)
		return ""
	}
	if summary == nil {
		return ""
	}
	return summary.Text
}
