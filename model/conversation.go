package model

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single stored conversation message. The ID is a monotonic
// append-only cursor; history ordering always uses it, never the timestamp.
type Message struct {
	// ID is the append-only cursor assigned by the store
	ID int64

	// UserID identifies the chat user this message belongs to
	UserID int64

	// Username is the display name captured at write time
	Username string

	// Role is who authored the message (user or assistant)
	Role Role

	// Text is the raw message text. For assistant messages this is the
	// full LLM output including any citation line.
	Text string

	// Sources lists the KB entries the answer was grounded on, empty for
	// user messages and for answers without retrieval.
	Sources []string

	// CreatedAt is the UTC write time
	CreatedAt time.Time
}

// Summary is the rolling conversation summary for one user. At most one
// row exists per user; a new summary replaces the prior one.
type Summary struct {
	// UserID identifies the chat user
	UserID int64

	// Text is the current merged summary
	Text string

	// MessageCount is the cumulative number of user messages folded into
	// the summary so far.
	MessageCount int

	// LastMessageID is a strict high-water mark over Message.ID. Messages
	// with ID greater than this are not yet summarized.
	LastMessageID int64

	// CreatedAt is the UTC time the current summary text was produced
	CreatedAt time.Time
}
