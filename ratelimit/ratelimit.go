// Package ratelimit keeps per-user sliding windows over message
// timestamps. State is in-memory only and resets on restart, which is
// acceptable for the abuse profile of a small-business bot.
package ratelimit

import (
	"sync"
	"time"
)

// Window names the sliding window that rejected a message.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Canned replies per exhausted window. The daily message points at the
// agent button because the bot will not answer again today.
const (
	minuteMessage = "קצב ההודעות מהיר מדי. אנא המתינו כחצי דקה ונסו שוב"
	hourMessage   = "הגעתם למגבלת ההודעות לשעה הקרובה. ניתן יהיה להמשיך את השיחה בתום השעה"
	dayMessage    = "הגעתם למכסת ההודעות היומית של הבוט. ניתן להמשיך מול נציג אנושי בלחיצה על הכפתור למטה"
)

// Verdict is the outcome of one rate-limit check.
type Verdict struct {
	Limited bool
	Window  Window
	Message string
}

// Limiter tracks send timestamps per user across three windows.
type Limiter struct {
	mu      sync.Mutex
	history map[int64][]time.Time

	perMinute int
	perHour   int
	perDay    int

	now func() time.Time
}

// New creates a limiter with the given per-window caps.
func New(perMinute, perHour, perDay int) *Limiter {
	return &Limiter{
		history:   make(map[int64][]time.Time),
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
		now:       time.Now,
	}
}

// Check prunes entries older than the daily window and reports whether
// the user may send another message. Check does not record anything;
// callers record separately so a rejected message never counts.
func (l *Limiter) Check(userID int64) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-24 * time.Hour)

	entries := l.history[userID]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.history, userID)
	} else {
		l.history[userID] = kept
	}

	windows := []struct {
		window  Window
		span    time.Duration
		cap     int
		message string
	}{
		{WindowMinute, time.Minute, l.perMinute, minuteMessage},
		{WindowHour, time.Hour, l.perHour, hourMessage},
		{WindowDay, 24 * time.Hour, l.perDay, dayMessage},
	}
	for _, w := range windows {
		since := now.Add(-w.span)
		count := 0
		for i := len(kept) - 1; i >= 0; i-- {
			if kept[i].After(since) {
				count++
			} else {
				break
			}
		}
		if count >= w.cap {
			return Verdict{Limited: true, Window: w.window, Message: w.message}
		}
	}
	return Verdict{}
}

// Record appends the current instant to the user's history.
func (l *Limiter) Record(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history[userID] = append(l.history[userID], l.now())
}
