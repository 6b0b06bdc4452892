package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(perMinute, perHour, perDay int) (*Limiter, *time.Time) {
	l := New(perMinute, perHour, perDay)
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestLimiter_MinuteBoundary(t *testing.T) {
	l, _ := newTestLimiter(3, 100, 1000)

	// N-1 messages pass
	for i := 0; i < 2; i++ {
		if v := l.Check(7); v.Limited {
			t.Fatalf("Message %d should pass: %+v", i, v)
		}
		l.Record(7)
	}

	// Nth message still passes (cap counts what was recorded)
	if v := l.Check(7); v.Limited {
		t.Fatalf("Third check should pass: %+v", v)
	}
	l.Record(7)

	v := l.Check(7)
	if !v.Limited || v.Window != WindowMinute {
		t.Fatalf("Fourth check should hit the minute window: %+v", v)
	}
	if v.Message == "" {
		t.Error("Limited verdict must carry the canned message")
	}
}

func TestLimiter_CheckDoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter(1, 100, 1000)

	for i := 0; i < 5; i++ {
		if v := l.Check(7); v.Limited {
			t.Fatalf("Check alone must never consume budget (iteration %d)", i)
		}
	}
	l.Record(7)
	if v := l.Check(7); !v.Limited {
		t.Error("Recorded message should exhaust a cap of 1")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, 100, 1000)

	l.Record(7)
	l.Record(7)
	if v := l.Check(7); !v.Limited {
		t.Fatal("Cap of 2 should be exhausted")
	}

	// A minute later the window has slid past both entries
	*clock = clock.Add(61 * time.Second)
	if v := l.Check(7); v.Limited {
		t.Errorf("Window should have slid: %+v", v)
	}
}

func TestLimiter_HourAndDayWindows(t *testing.T) {
	l, clock := newTestLimiter(100, 3, 5)

	// Three messages spread over minutes exhaust the hourly cap
	for i := 0; i < 3; i++ {
		l.Record(7)
		*clock = clock.Add(2 * time.Minute)
	}
	v := l.Check(7)
	if !v.Limited || v.Window != WindowHour {
		t.Fatalf("Expected hourly limit, got %+v", v)
	}

	// An hour later the hourly window clears, but more traffic can
	// still exhaust the daily one.
	*clock = clock.Add(time.Hour)
	if v := l.Check(7); v.Limited {
		t.Fatalf("Hourly window should have cleared: %+v", v)
	}
	l.Record(7)
	l.Record(7)
	v = l.Check(7)
	if !v.Limited || v.Window != WindowDay {
		t.Fatalf("Expected daily limit, got %+v", v)
	}

	// A day later everything is pruned
	*clock = clock.Add(25 * time.Hour)
	if v := l.Check(7); v.Limited {
		t.Errorf("Daily window should have cleared: %+v", v)
	}
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 100, 1000)

	l.Record(7)
	if v := l.Check(7); !v.Limited {
		t.Fatal("User 7 should be limited")
	}
	if v := l.Check(8); v.Limited {
		t.Error("User 8 shares no budget with user 7")
	}
}
