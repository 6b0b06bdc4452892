package vacation

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestActiveDefaultsOff(t *testing.T) {
	s := newTestService(t)
	if s.Active() {
		t.Error("vacation should default to inactive")
	}
}

func TestActiveToggles(t *testing.T) {
	s := newTestService(t)
	if err := s.Set(model.Vacation{Active: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !s.Active() {
		t.Error("vacation should be active after Set")
	}
	if err := s.Set(model.Vacation{Active: false}); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if s.Active() {
		t.Error("vacation should be inactive after clearing")
	}
}

func TestBookingMessageWithEndDate(t *testing.T) {
	s := newTestService(t)
	if err := s.Set(model.Vacation{Active: true, EndDate: "2026-01-15"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	msg := s.BookingMessage()
	if !strings.Contains(msg, "בחופשה עד 2026-01-15") {
		t.Errorf("missing end date: %q", msg)
	}
	if !strings.Contains(msg, "ניתן לקבוע תורים החל מ-2026-01-15") {
		t.Errorf("missing resume line: %q", msg)
	}
}

func TestBookingMessageWithoutEndDate(t *testing.T) {
	s := newTestService(t)
	if err := s.Set(model.Vacation{Active: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	msg := s.BookingMessage()
	if !strings.Contains(msg, "אנחנו כרגע בחופשה") {
		t.Errorf("wrong template: %q", msg)
	}
}

func TestBookingMessageCustomOverride(t *testing.T) {
	s := newTestService(t)
	custom := "סגרנו לשיפוצים, נתראה בפברואר!"
	if err := s.Set(model.Vacation{Active: true, EndDate: "2026-01-15", CustomMessage: custom}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if msg := s.BookingMessage(); msg != custom {
		t.Errorf("custom message not used: %q", msg)
	}
}

func TestAgentMessage(t *testing.T) {
	s := newTestService(t)
	if err := s.Set(model.Vacation{Active: true, EndDate: "2026-01-15"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	msg := s.AgentMessage()
	if !strings.Contains(msg, "ניצור קשר כשנחזור") {
		t.Errorf("wrong agent message: %q", msg)
	}
	if !strings.Contains(msg, "2026-01-15") {
		t.Errorf("missing end date: %q", msg)
	}

	// The custom message applies to booking only.
	if err := s.Set(model.Vacation{Active: true, CustomMessage: "custom"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if msg := s.AgentMessage(); msg == "custom" {
		t.Error("agent message must not use the booking override")
	}
}
