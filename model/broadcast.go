package model

import "time"

// BroadcastStatus is the lifecycle state of a broadcast job.
type BroadcastStatus string

const (
	BroadcastQueued    BroadcastStatus = "queued"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastFailed    BroadcastStatus = "failed"
)

// Broadcast audiences. Recipients are resolved once, at creation time.
const (
	AudienceAll       = "all"
	AudienceActive7d  = "active_7d"
	AudienceActive30d = "active_30d"
)

// Broadcast is one owner-initiated fan-out message with its progress
// counters. Counters survive failure so a partial run stays visible.
type Broadcast struct {
	ID       int64
	Text     string
	Audience string

	RecipientCount int
	SentCount      int
	FailedCount    int

	Status    BroadcastStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscriber is a chat user's broadcast opt-in state. Users are
// subscribed by default on their first message; activity windows for
// audience resolution come from the conversations table.
type Subscriber struct {
	UserID     int64
	Username   string
	Subscribed bool
	CreatedAt  time.Time
}
