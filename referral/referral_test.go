package referral

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Referral: config.ReferralConfig{Engaged30m: 10, Engaged24h: 20},
	}
	return New(db, cfg), db
}

func TestGenerateCodeIdempotent(t *testing.T) {
	s, _ := newTestService(t)

	code, err := s.GenerateCode(1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(code, "REF_") || len(code) != len("REF_")+8 {
		t.Errorf("unexpected code format: %q", code)
	}

	again, err := s.GenerateCode(1)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if again != code {
		t.Errorf("second call returned a different code: %q vs %q", again, code)
	}
}

func TestGenerateCodeDistinctPerUser(t *testing.T) {
	s, _ := newTestService(t)
	a, _ := s.GenerateCode(1)
	b, _ := s.GenerateCode(2)
	if a == b {
		t.Errorf("two users share a code: %q", a)
	}
}

func TestRegisterHappyPath(t *testing.T) {
	s, _ := newTestService(t)
	code, _ := s.GenerateCode(1)

	ok, err := s.Register(code, 2)
	if err != nil || !ok {
		t.Fatalf("register: ok=%v err=%v", ok, err)
	}
}

func TestRegisterRejectsSelfReferral(t *testing.T) {
	s, _ := newTestService(t)
	code, _ := s.GenerateCode(1)

	ok, err := s.Register(code, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ok {
		t.Error("self-referral must be rejected")
	}
}

func TestRegisterRejectsUsedCode(t *testing.T) {
	s, _ := newTestService(t)
	code, _ := s.GenerateCode(1)
	s.Register(code, 2)

	ok, _ := s.Register(code, 3)
	if ok {
		t.Error("a code binds at most one referred user")
	}
}

func TestRegisterRejectsAlreadyReferredUser(t *testing.T) {
	s, _ := newTestService(t)
	codeA, _ := s.GenerateCode(1)
	codeB, _ := s.GenerateCode(2)
	s.Register(codeA, 3)

	ok, _ := s.Register(codeB, 3)
	if ok {
		t.Error("a user can be referred at most once")
	}
}

func TestRegisterUnknownCode(t *testing.T) {
	s, _ := newTestService(t)
	ok, err := s.Register("REF_NOSUCH00", 2)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ok {
		t.Error("unknown code must no-op")
	}
}

func TestCompleteMintsDualCredits(t *testing.T) {
	s, db := newTestService(t)
	code, _ := s.GenerateCode(1)
	s.Register(code, 2)

	start := time.Now()
	ok, err := s.Complete(2)
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}

	for _, userID := range []int64{1, 2} {
		credits, err := db.UserCredits(userID)
		if err != nil {
			t.Fatalf("credits: %v", err)
		}
		if len(credits) != 1 {
			t.Fatalf("user %d has %d credits, want 1", userID, len(credits))
		}
		c := credits[0]
		if c.Amount != 10 {
			t.Errorf("user %d credit amount = %d, want 10", userID, c.Amount)
		}
		if !c.Usable(start) {
			t.Errorf("user %d credit should be usable", userID)
		}
		wantExpiry := start.Add(60 * 24 * time.Hour)
		if c.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || c.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
			t.Errorf("user %d credit expires %v, want ~%v", userID, c.ExpiresAt, wantExpiry)
		}
	}

	ref, _ := db.ReferralByReferred(2)
	if ref.Status != model.ReferralCompleted || ref.CompletedAt.IsZero() {
		t.Errorf("referral not stamped completed: %+v", ref)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	s, db := newTestService(t)
	code, _ := s.GenerateCode(1)
	s.Register(code, 2)
	s.Complete(2)

	ok, err := s.Complete(2)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if ok {
		t.Error("second completion must no-op")
	}
	credits, _ := db.UserCredits(1)
	if len(credits) != 1 {
		t.Errorf("duplicate completion minted extra credits: %d", len(credits))
	}
}

func TestCompleteWithoutReferral(t *testing.T) {
	s, _ := newTestService(t)
	ok, err := s.Complete(99)
	if err != nil || ok {
		t.Errorf("complete without referral: ok=%v err=%v", ok, err)
	}
}

func TestTrySendCodeOnce(t *testing.T) {
	s, _ := newTestService(t)

	var sent []string
	send := func(text string) error {
		sent = append(sent, text)
		return nil
	}

	if !s.TrySendCode(1, send) {
		t.Fatal("first send should succeed")
	}
	if len(sent) != 1 || !strings.Contains(sent[0], "REF_") {
		t.Errorf("message missing code: %v", sent)
	}

	if s.TrySendCode(1, send) {
		t.Error("second send must be suppressed")
	}
	if len(sent) != 1 {
		t.Errorf("code delivered twice: %d", len(sent))
	}
}

func TestTrySendCodeUnmarksOnFailure(t *testing.T) {
	s, _ := newTestService(t)

	if s.TrySendCode(1, func(string) error { return errors.New("blocked") }) {
		t.Fatal("failed delivery must report false")
	}

	// The flag was reset, so a retry delivers.
	delivered := false
	if !s.TrySendCode(1, func(string) error { delivered = true; return nil }) {
		t.Fatal("retry after failure should succeed")
	}
	if !delivered {
		t.Error("retry did not call send")
	}
}

func TestCheckEngagementBelowThreshold(t *testing.T) {
	s, db := newTestService(t)
	for i := 0; i < 5; i++ {
		db.SaveMessage(1, "dana", model.RoleUser, "hi", nil)
	}

	called := false
	s.CheckEngagement(1, func(string) error { called = true; return nil })
	if called {
		t.Error("5 messages must not trigger the referral offer")
	}
}

func TestCheckEngagementTriggersAtThreshold(t *testing.T) {
	s, db := newTestService(t)
	for i := 0; i < 10; i++ {
		db.SaveMessage(1, "dana", model.RoleUser, "hi", nil)
	}

	var sent string
	s.CheckEngagement(1, func(text string) error { sent = text; return nil })
	if sent == "" {
		t.Fatal("10 messages in 30 minutes should trigger the offer")
	}
	if !strings.Contains(sent, "REF_") {
		t.Errorf("offer missing code: %q", sent)
	}
}

func TestCheckEngagementSkipsExistingCode(t *testing.T) {
	s, db := newTestService(t)
	s.GenerateCode(1)
	for i := 0; i < 15; i++ {
		db.SaveMessage(1, "dana", model.RoleUser, "hi", nil)
	}

	called := false
	s.CheckEngagement(1, func(string) error { called = true; return nil })
	if called {
		t.Error("users who already have a code get no engagement offer")
	}
}

func TestMessageTextUsesDeepLink(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Chat.BotUsername = "my_salon_bot"
	s := New(db, cfg)

	text := s.MessageText("REF_ABCD1234")
	if !strings.Contains(text, "https://t.me/my_salon_bot?start=REF_ABCD1234") {
		t.Errorf("deep link missing: %q", text)
	}
}
