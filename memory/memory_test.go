package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

type fakeLLM struct {
	calls int
	reply string
	err   error
	last  openai.ChatCompletionRequest
}

func (f *fakeLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func newTestSummarizer(t *testing.T, llm *fakeLLM) (*Summarizer, *store.Store) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSummarizer(db, llm, "gpt-4o-mini", 10), db
}

func saveTurns(t *testing.T, db *store.Store, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := db.SaveMessage(userID, "dana", model.RoleUser, fmt.Sprintf("message %d", i), nil); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}
}

func TestMaybeSummarizeBelowThreshold(t *testing.T) {
	llm := &fakeLLM{reply: "summary"}
	s, db := newTestSummarizer(t, llm)
	saveTurns(t, db, 1, 9)

	s.MaybeSummarize(context.Background(), 1)

	if llm.calls != 0 {
		t.Errorf("summarizer ran below threshold: %d calls", llm.calls)
	}
	if sum, _ := db.GetSummary(1); sum != nil {
		t.Error("no summary row expected below threshold")
	}
}

func TestMaybeSummarizeAtThreshold(t *testing.T) {
	llm := &fakeLLM{reply: "Dana prefers morning appointments."}
	s, db := newTestSummarizer(t, llm)
	saveTurns(t, db, 1, 10)

	s.MaybeSummarize(context.Background(), 1)

	if llm.calls != 1 {
		t.Fatalf("expected one LLM call, got %d", llm.calls)
	}
	sum, err := db.GetSummary(1)
	if err != nil || sum == nil {
		t.Fatalf("summary missing: %v", err)
	}
	if sum.Text != "Dana prefers morning appointments." {
		t.Errorf("wrong summary text: %q", sum.Text)
	}
	if sum.MessageCount != 10 {
		t.Errorf("message count = %d, want 10", sum.MessageCount)
	}
	if sum.LastMessageID == 0 {
		t.Error("high-water mark not advanced")
	}
}

func TestMaybeSummarizeMergesPriorSummary(t *testing.T) {
	llm := &fakeLLM{reply: "first"}
	s, db := newTestSummarizer(t, llm)
	saveTurns(t, db, 1, 10)
	s.MaybeSummarize(context.Background(), 1)

	first, _ := db.GetSummary(1)

	saveTurns(t, db, 1, 10)
	llm.reply = "merged"
	s.MaybeSummarize(context.Background(), 1)

	prompt := llm.last.Messages[1].Content
	if !strings.Contains(prompt, "Prior summary:\nfirst") {
		t.Errorf("prior summary missing from merge prompt:\n%s", prompt)
	}

	second, _ := db.GetSummary(1)
	if second.Text != "merged" || second.MessageCount != 20 {
		t.Errorf("merge result wrong: %+v", second)
	}
	if second.LastMessageID <= first.LastMessageID {
		t.Error("high-water mark did not advance on merge")
	}
}

func TestMaybeSummarizeKeepsHWMOnFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider down")}
	s, db := newTestSummarizer(t, llm)
	saveTurns(t, db, 1, 10)

	s.MaybeSummarize(context.Background(), 1)

	if sum, _ := db.GetSummary(1); sum != nil {
		t.Error("failed summarization must not write a summary")
	}

	// Same window retries once the provider recovers.
	llm.err = nil
	llm.reply = "recovered"
	s.MaybeSummarize(context.Background(), 1)

	sum, _ := db.GetSummary(1)
	if sum == nil || sum.Text != "recovered" {
		t.Errorf("retry after failure did not summarize: %+v", sum)
	}
}

func TestMaybeSummarizeOnlyCountsOwnUser(t *testing.T) {
	llm := &fakeLLM{reply: "summary"}
	s, db := newTestSummarizer(t, llm)
	saveTurns(t, db, 1, 5)
	saveTurns(t, db, 2, 10)

	s.MaybeSummarize(context.Background(), 1)
	if llm.calls != 0 {
		t.Error("user 1 is below threshold regardless of user 2's traffic")
	}
}

func TestLockMapMutualExclusion(t *testing.T) {
	m := NewLockMap(10)
	if !m.TryLock(1) {
		t.Fatal("first acquire should succeed")
	}
	if m.TryLock(1) {
		t.Error("second acquire of a held lock must fail")
	}
	m.Unlock(1)
	if !m.TryLock(1) {
		t.Error("acquire after release should succeed")
	}
}

func TestLockMapEvictsUnlockedAtCapacity(t *testing.T) {
	m := NewLockMap(3)
	for id := int64(1); id <= 3; id++ {
		if !m.TryLock(id) {
			t.Fatalf("acquire %d failed", id)
		}
		m.Unlock(id)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 cached entries, got %d", m.Len())
	}

	// Map is full but all entries are released, so a new user fits.
	if !m.TryLock(4) {
		t.Error("full map of released entries must evict to admit a new user")
	}
}

func TestLockMapFullOfHeldLocks(t *testing.T) {
	m := NewLockMap(2)
	m.TryLock(1)
	m.TryLock(2)

	if m.TryLock(3) {
		t.Error("no eviction possible while every entry is held")
	}
}
