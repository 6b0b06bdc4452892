package model

import "time"

// DayHours is the regular weekly schedule for one day. Day follows the
// business convention: 0 = Sunday through 6 = Saturday.
type DayHours struct {
	Day    int
	Open   string // "HH:MM", empty when Closed
	Close  string // "HH:MM", empty when Closed
	Closed bool
}

// SpecialDay overrides the weekly schedule for a single calendar date.
type SpecialDay struct {
	ID int64

	// Date is "YYYY-MM-DD" in the business timezone, unique
	Date string

	Name   string
	Open   string // override opening, empty keeps the day closed
	Close  string
	Closed bool
	Notes  string

	CreatedAt time.Time
}

// Vacation is the singleton vacation-mode state. While active, booking
// and agent-request flows answer with a vacation message instead.
type Vacation struct {
	Active bool

	// EndDate is "YYYY-MM-DD", empty when unknown
	EndDate string

	// CustomMessage overrides the templated customer message when set
	CustomMessage string
}
