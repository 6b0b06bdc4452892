package hours

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := NewResolver(db, "Asia/Jerusalem")
	return r, db
}

func seedDefaultHours(t *testing.T, db *store.Store) {
	t.Helper()
	for _, h := range DefaultWeeklyHours() {
		if err := db.SetDayHours(h); err != nil {
			t.Fatalf("seed hours: %v", err)
		}
	}
}

func localDate(t *testing.T, r *Resolver, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	return time.Date(y, m, d, hh, mm, 0, 0, r.loc)
}

func (r *Resolver) freeze(at time.Time) {
	r.SetClock(func() time.Time { return at })
}

func TestStatusForRegularOpenDay(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	// Monday 2025-11-03, a plain weekday.
	status, err := r.StatusFor(localDate(t, r, 2025, 11, 3, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Open || status.Source != SourceRegular {
		t.Errorf("want open regular day, got %+v", status)
	}
	if status.OpenTime != "09:00" || status.CloseTime != "19:00" {
		t.Errorf("wrong hours: %s-%s", status.OpenTime, status.CloseTime)
	}
	if status.DayName != "שני" {
		t.Errorf("wrong day name: %s", status.DayName)
	}
}

func TestStatusForRegularClosedDay(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	// Saturday 2025-11-08.
	status, err := r.StatusFor(localDate(t, r, 2025, 11, 8, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Open || status.Source != SourceRegular || status.DayName != "שבת" {
		t.Errorf("want closed saturday, got %+v", status)
	}
}

func TestStatusForHoliday(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	// Yom Kippur 2025 falls on Thursday 2025-10-02.
	status, err := r.StatusFor(localDate(t, r, 2025, 10, 2, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Open || status.Source != SourceHoliday {
		t.Errorf("want holiday closure, got %+v", status)
	}
	if status.Reason != "יום כיפור" {
		t.Errorf("wrong reason: %s", status.Reason)
	}
}

func TestStatusForErevChagOnOpenDay(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	// Wednesday 2025-10-01, the day before Yom Kippur.
	status, err := r.StatusFor(localDate(t, r, 2025, 10, 1, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Open || status.Source != SourceErevChag {
		t.Errorf("want erev chag, got %+v", status)
	}
	if !strings.HasPrefix(status.Reason, "ערב ") {
		t.Errorf("wrong reason: %s", status.Reason)
	}
}

func TestErevChagDoesNotOpenClosedDay(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	if err := db.SetDayHours(model.DayHours{Day: 3, Closed: true}); err != nil {
		t.Fatalf("close wednesday: %v", err)
	}

	status, err := r.StatusFor(localDate(t, r, 2025, 10, 1, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Open || status.Source != SourceRegular {
		t.Errorf("erev chag must not open a closed day, got %+v", status)
	}
}

func TestSpecialDayBeatsHoliday(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	_, err := db.CreateSpecialDay(model.SpecialDay{
		Date: "2025-10-02", Name: "פתיחה מיוחדת", Open: "10:00", Close: "14:00",
	})
	if err != nil {
		t.Fatalf("create special day: %v", err)
	}

	status, err := r.StatusFor(localDate(t, r, 2025, 10, 2, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Open || status.Source != SourceSpecialDay {
		t.Errorf("special day must win, got %+v", status)
	}
	if status.OpenTime != "10:00" || status.CloseTime != "14:00" {
		t.Errorf("wrong override hours: %s-%s", status.OpenTime, status.CloseTime)
	}
}

func TestSpecialDayClosure(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	_, err := db.CreateSpecialDay(model.SpecialDay{
		Date: "2025-11-03", Name: "יום צילומים", Closed: true,
	})
	if err != nil {
		t.Fatalf("create special day: %v", err)
	}

	status, err := r.StatusFor(localDate(t, r, 2025, 11, 3, 12, 0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Open || status.Source != SourceSpecialDay || status.Reason != "יום צילומים" {
		t.Errorf("want special closure, got %+v", status)
	}
}

func TestCurrentStatusWithinHours(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	r.freeze(localDate(t, r, 2025, 11, 3, 12, 0)) // Monday noon

	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if !live.Open {
		t.Fatal("should be open monday noon")
	}
	if !strings.Contains(live.Message, "פתוחים עד 19:00") {
		t.Errorf("wrong message: %s", live.Message)
	}
}

func TestCurrentStatusBeforeOpening(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	r.freeze(localDate(t, r, 2025, 11, 3, 7, 30))

	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if live.Open {
		t.Fatal("should be closed before opening")
	}
	if !strings.Contains(live.Message, "עדיין לא פתחנו") || !strings.Contains(live.Message, "09:00") {
		t.Errorf("wrong message: %s", live.Message)
	}
	if live.NextOpening != "היום בשעה 09:00" {
		t.Errorf("wrong next opening: %s", live.NextOpening)
	}
}

func TestCurrentStatusAfterClosing(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	r.freeze(localDate(t, r, 2025, 11, 3, 21, 0))

	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if live.Open {
		t.Fatal("should be closed after hours")
	}
	if !strings.Contains(live.NextOpening, "מחר") || !strings.Contains(live.NextOpening, "09:00") {
		t.Errorf("wrong next opening: %s", live.NextOpening)
	}
}

func TestCurrentStatusOvernightShiftTail(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	// Sunday runs a night shift.
	if err := db.SetDayHours(model.DayHours{Day: 0, Open: "22:00", Close: "02:00"}); err != nil {
		t.Fatalf("set overnight hours: %v", err)
	}

	// Monday 01:00 is still inside Sunday's shift.
	r.freeze(localDate(t, r, 2025, 11, 3, 1, 0))
	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if !live.Open {
		t.Fatal("01:00 should still be inside the overnight shift")
	}
	if !strings.Contains(live.Message, "02:00") {
		t.Errorf("wrong message: %s", live.Message)
	}

	// Monday 03:00 is past the tail and before Monday opening.
	r.freeze(localDate(t, r, 2025, 11, 3, 3, 0))
	live, err = r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if live.Open {
		t.Error("03:00 is outside every shift")
	}
}

func TestCurrentStatusOvernightNotStarted(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	if err := db.SetDayHours(model.DayHours{Day: 1, Open: "22:00", Close: "02:00"}); err != nil {
		t.Fatalf("set overnight hours: %v", err)
	}

	// Monday 12:00, shift starts 22:00.
	r.freeze(localDate(t, r, 2025, 11, 3, 12, 0))
	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if live.Open {
		t.Error("overnight shift has not started at noon")
	}

	// Monday 23:00, shift running.
	r.freeze(localDate(t, r, 2025, 11, 3, 23, 0))
	live, err = r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if !live.Open {
		t.Error("23:00 is inside the overnight shift")
	}
}

func TestNextOpeningSkipsClosedDays(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	// Friday 2025-11-07 after closing; Saturday is closed so the next
	// opening is Sunday.
	r.freeze(localDate(t, r, 2025, 11, 7, 16, 0))
	live, err := r.CurrentStatus()
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if live.Open {
		t.Fatal("friday 16:00 is after closing")
	}
	if !strings.Contains(live.NextOpening, "ראשון") {
		t.Errorf("next opening should be sunday, got %s", live.NextOpening)
	}
}

func TestWeeklyScheduleText(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)

	text, err := r.WeeklyScheduleText()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !strings.Contains(text, "ראשון: 09:00 - 19:00") {
		t.Errorf("missing sunday line:\n%s", text)
	}
	if !strings.Contains(text, "שבת: סגור") {
		t.Errorf("missing closed saturday line:\n%s", text)
	}
}

func TestWeeklyScheduleTextEmpty(t *testing.T) {
	r, _ := newTestResolver(t)
	text, err := r.WeeklyScheduleText()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if text != "לא הוגדרו שעות פעילות." {
		t.Errorf("unexpected empty-schedule text: %q", text)
	}
}

func TestLLMContextIncludesVacation(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	r.freeze(localDate(t, r, 2025, 11, 3, 12, 0))

	if err := db.SetVacation(model.Vacation{Active: true, EndDate: "2025-11-20"}); err != nil {
		t.Fatalf("set vacation: %v", err)
	}

	ctx := r.LLMContext()
	if !strings.Contains(ctx, "מצב חופשה פעיל") {
		t.Errorf("vacation marker missing:\n%s", ctx)
	}
	if !strings.Contains(ctx, "2025-11-20") {
		t.Errorf("vacation end date missing:\n%s", ctx)
	}
	if !strings.Contains(ctx, "שעות פעילות:") {
		t.Errorf("weekly schedule missing:\n%s", ctx)
	}
}

func TestLLMContextListsUpcomingSpecialDays(t *testing.T) {
	r, db := newTestResolver(t)
	seedDefaultHours(t, db)
	// Sunday 2025-09-28; Yom Kippur 2025-10-02 is within 7 days.
	r.freeze(localDate(t, r, 2025, 9, 28, 12, 0))

	ctx := r.LLMContext()
	if !strings.Contains(ctx, "ימים מיוחדים קרובים:") {
		t.Errorf("upcoming section missing:\n%s", ctx)
	}
	if !strings.Contains(ctx, "יום כיפור") {
		t.Errorf("holiday missing from upcoming days:\n%s", ctx)
	}
}
