package model

import "time"

// LiveChatSession marks a conversation as taken over by a human agent.
// While a session is active the bot stays silent for that user. At most
// one active session exists per user.
type LiveChatSession struct {
	ID       int64
	UserID   int64
	Username string

	Active    bool
	StartedAt time.Time
	EndedAt   time.Time // zero while active
}
