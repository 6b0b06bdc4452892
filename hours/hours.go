// Package hours resolves business open/closed status against three
// layered sources: per-date special days, the Israeli holiday
// calendar, and the regular weekly schedule. All math runs in the
// business timezone.
package hours

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

// Source identifies which layer decided a day's status.
const (
	SourceSpecialDay = "special_day"
	SourceHoliday    = "holiday"
	SourceErevChag   = "erev_chag"
	SourceRegular    = "regular"
)

// dayNames maps business day-of-week (0 = Sunday) to Hebrew names.
var dayNames = [7]string{"ראשון", "שני", "שלישי", "רביעי", "חמישי", "שישי", "שבת"}

// DayName returns the Hebrew name for a business day-of-week.
func DayName(day int) string {
	if day < 0 || day > 6 {
		return "?"
	}
	return dayNames[day]
}

// BusinessDay converts a time.Weekday (Sunday = 0 already) to the
// business convention, which also counts from Sunday.
func BusinessDay(w time.Weekday) int {
	return int(w)
}

// Status is the resolved state of one calendar day.
type Status struct {
	Open      bool
	OpenTime  string
	CloseTime string
	Reason    string
	Notes     string
	Source    string
	DayName   string
}

// LiveStatus is the right-now answer.
type LiveStatus struct {
	Open        bool
	Message     string
	NextOpening string
}

// Resolver answers hours questions from the store. The clock is
// injectable for tests.
type Resolver struct {
	db  *store.Store
	loc *time.Location
	now func() time.Time
}

// NewResolver creates a resolver in the given timezone name, falling
// back to UTC when the zone cannot be loaded.
func NewResolver(db *store.Store, timezone string) *Resolver {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Log.Errorf("[Hours] unknown timezone %q, using UTC: %v", timezone, err)
		loc = time.UTC
	}
	return &Resolver{db: db, loc: loc, now: time.Now}
}

func (r *Resolver) localNow() time.Time {
	return r.now().In(r.loc)
}

// StatusFor resolves one date: special day, then holiday, then weekly
// hours with the erev-chag lookahead.
func (r *Resolver) StatusFor(date time.Time) (Status, error) {
	date = date.In(r.loc)
	day := BusinessDay(date.Weekday())
	dateStr := date.Format("2006-01-02")
	tomorrowStr := date.AddDate(0, 0, 1).Format("2006-01-02")

	status := Status{DayName: DayName(day)}

	special, err := r.db.SpecialDayFor(dateStr)
	if err != nil {
		return status, fmt.Errorf("failed to resolve special day: %w", err)
	}
	if special != nil {
		status.Source = SourceSpecialDay
		status.Notes = special.Notes
		if special.Closed {
			status.Reason = special.Name
			return status, nil
		}
		status.Open = true
		status.OpenTime = special.Open
		status.CloseTime = special.Close
		status.Reason = special.Name + " (שעות מיוחדות)"
		return status, nil
	}

	if name := holidayName(dateStr); name != "" {
		status.Source = SourceHoliday
		status.Reason = name
		return status, nil
	}

	weekly, err := r.db.DayHoursFor(day)
	if err != nil {
		return status, fmt.Errorf("failed to resolve weekly hours: %w", err)
	}
	regularlyClosed := weekly == nil || weekly.Closed

	// Erev chag only applies when the business is normally open today.
	if name := holidayName(tomorrowStr); name != "" && !regularlyClosed {
		status.Source = SourceErevChag
		status.Open = true
		status.OpenTime = weekly.Open
		status.CloseTime = weekly.Close
		status.Reason = "ערב " + name
		status.Notes = "ייתכן שעות מקוצרות — מומלץ לבדוק מראש"
		return status, nil
	}

	status.Source = SourceRegular
	if regularlyClosed {
		status.Reason = "סגור ביום זה"
		return status, nil
	}
	status.Open = true
	status.OpenTime = weekly.Open
	status.CloseTime = weekly.Close
	return status, nil
}

// CurrentStatus answers "are we open right now". Overnight shifts are
// split at midnight: the early-morning tail belongs to yesterday's
// shift, so yesterday is checked first.
func (r *Resolver) CurrentStatus() (LiveStatus, error) {
	now := r.localNow()
	clock := now.Format("15:04")

	yesterday, err := r.StatusFor(now.AddDate(0, 0, -1))
	if err != nil {
		return LiveStatus{}, err
	}
	if yesterday.Open && yesterday.OpenTime != "" && yesterday.CloseTime != "" &&
		yesterday.CloseTime <= yesterday.OpenTime && clock < yesterday.CloseTime {
		return LiveStatus{
			Open:    true,
			Message: fmt.Sprintf("✅ כן! אנחנו פתוחים עד %s.", yesterday.CloseTime),
		}, nil
	}

	today, err := r.StatusFor(now)
	if err != nil {
		return LiveStatus{}, err
	}

	if !today.Open {
		next, err := r.nextOpening(now)
		if err != nil {
			return LiveStatus{}, err
		}
		return LiveStatus{
			Open:        false,
			Message:     closedMessage(today, next),
			NextOpening: next,
		}, nil
	}

	if today.OpenTime == "" || today.CloseTime == "" {
		return LiveStatus{Open: true, Message: "אנחנו פתוחים היום!"}, nil
	}

	overnight := today.CloseTime <= today.OpenTime
	var within bool
	if overnight {
		// Today's shift only starts at open; the tail past midnight was
		// handled by the yesterday check.
		within = clock >= today.OpenTime
	} else {
		within = clock >= today.OpenTime && clock < today.CloseTime
	}

	if !within {
		if clock < today.OpenTime {
			return LiveStatus{
				Open:        false,
				Message:     fmt.Sprintf("🔴 עדיין לא פתחנו — נפתח היום בשעה %s.", today.OpenTime),
				NextOpening: fmt.Sprintf("היום בשעה %s", today.OpenTime),
			}, nil
		}
		next, err := r.nextOpening(now)
		if err != nil {
			return LiveStatus{}, err
		}
		return LiveStatus{
			Open:        false,
			Message:     closedMessage(Status{Source: SourceRegular}, next),
			NextOpening: next,
		}, nil
	}

	msg := fmt.Sprintf("✅ כן! אנחנו פתוחים עד %s.", today.CloseTime)
	if today.Source == SourceErevChag {
		msg += fmt.Sprintf("\n⚠️ %s — %s", today.Reason, today.Notes)
	}
	return LiveStatus{Open: true, Message: msg}, nil
}

// nextOpening scans up to 7 days ahead for the next open day.
func (r *Resolver) nextOpening(from time.Time) (string, error) {
	for i := 1; i <= 7; i++ {
		status, err := r.StatusFor(from.AddDate(0, 0, i))
		if err != nil {
			return "", err
		}
		if status.Open && status.OpenTime != "" {
			if i == 1 {
				return fmt.Sprintf("מחר (%s) בשעה %s", status.DayName, status.OpenTime), nil
			}
			return fmt.Sprintf("יום %s בשעה %s", status.DayName, status.OpenTime), nil
		}
	}
	return "", nil
}

func closedMessage(status Status, nextOpening string) string {
	var msg string
	switch status.Source {
	case SourceHoliday, SourceSpecialDay:
		msg = fmt.Sprintf("🔴 סגור היום (%s).", status.Reason)
	default:
		msg = "🔴 סגור כעת."
	}
	if nextOpening != "" {
		msg += "\nנפתח שוב: " + nextOpening
	}
	return msg
}

// WeeklyScheduleText renders the weekly schedule as customer-facing
// Hebrew text.
func (r *Resolver) WeeklyScheduleText() (string, error) {
	all, err := r.db.BusinessHours()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "לא הוגדרו שעות פעילות.", nil
	}

	lines := []string{"שעות פעילות:"}
	for _, h := range all {
		if h.Closed {
			lines = append(lines, fmt.Sprintf("  %s: סגור", DayName(h.Day)))
		} else {
			lines = append(lines, fmt.Sprintf("  %s: %s - %s", DayName(h.Day), h.Open, h.Close))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// LLMContext builds the hours block injected into the model's context
// message: current status, weekly schedule, special days in the next 7
// days and the vacation marker when active.
func (r *Resolver) LLMContext() string {
	now := r.localNow()

	live, err := r.CurrentStatus()
	if err != nil {
		log.Log.Errorf("[Hours] failed to resolve current status: %v", err)
		return ""
	}
	schedule, err := r.WeeklyScheduleText()
	if err != nil {
		log.Log.Errorf("[Hours] failed to render weekly schedule: %v", err)
		return ""
	}

	var upcoming []string
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, i)
		status, err := r.StatusFor(d)
		if err != nil {
			continue
		}
		switch status.Source {
		case SourceSpecialDay, SourceHoliday, SourceErevChag:
			upcoming = append(upcoming, fmt.Sprintf("  %s (%s): %s",
				d.Format("02/01"), status.DayName, status.Reason))
		}
	}

	parts := []string{
		fmt.Sprintf("תאריך ושעה נוכחיים: %s (יום %s)",
			now.Format("02/01/2006 15:04"), DayName(BusinessDay(now.Weekday()))),
		"סטטוס כרגע: " + live.Message,
		"",
		schedule,
	}
	if len(upcoming) > 0 {
		parts = append(parts, "", "ימים מיוחדים קרובים:")
		parts = append(parts, upcoming...)
	}

	if vacation, err := r.db.Vacation(); err != nil {
		log.Log.Errorf("[Hours] failed to read vacation mode: %v", err)
	} else if vacation.Active {
		parts = append(parts, "", "*** מצב חופשה פעיל ***")
		if end := strings.TrimSpace(vacation.EndDate); end != "" {
			parts = append(parts,
				fmt.Sprintf("העסק בחופשה עד %s.", end),
				fmt.Sprintf("אי אפשר לקבוע תורים כרגע. ניתן לקבוע תורים החל מ-%s.", end))
		} else {
			parts = append(parts, "העסק בחופשה כרגע.", "אי אפשר לקבוע תורים כרגע.")
		}
		parts = append(parts, "שאלות מידע כלליות — ענה כרגיל.")
	}

	return strings.Join(parts, "\n")
}

// SetClock overrides the resolver clock. Tests only.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// DefaultWeeklyHours is the seed schedule: Sunday through Thursday
// 09:00-19:00, Friday 09:00-14:00, Saturday closed.
func DefaultWeeklyHours() []model.DayHours {
	hours := make([]model.DayHours, 0, 7)
	for day := 0; day <= 4; day++ {
		hours = append(hours, model.DayHours{Day: day, Open: "09:00", Close: "19:00"})
	}
	hours = append(hours,
		model.DayHours{Day: 5, Open: "09:00", Close: "14:00"},
		model.DayHours{Day: 6, Closed: true},
	)
	return hours
}
