// Package chat defines the transport boundary between the bot and the
// chat platform. The engine consumes Updates from a Source and replies
// through a Sender; the concrete platform adapter lives outside this
// module and only needs to satisfy these two interfaces.
package chat

import "context"

// UpdateKind classifies an inbound update for routing.
type UpdateKind string

const (
	// KindCommand is a slash command, Text holds the full line
	KindCommand UpdateKind = "command"

	// KindText is free text typed by the user
	KindText UpdateKind = "text"

	// KindMenuButton is a press on one of the persistent menu buttons,
	// Text holds the button label.
	KindMenuButton UpdateKind = "menu_button"

	// KindCallback is an inline-button press, CallbackData holds the
	// button payload.
	KindCallback UpdateKind = "inline_callback"
)

// Update is one inbound event from the chat platform.
type Update struct {
	// UserID is the platform chat id, also used as the conversation key
	UserID int64

	// DisplayName is the user's shown name, may be empty
	DisplayName string

	// Handle is the platform handle (e.g. @username), may be empty
	Handle string

	Kind UpdateKind
	Text string

	// CallbackData is set only for KindCallback
	CallbackData string
}

// InlineButton is one button of an inline keyboard row.
type InlineButton struct {
	Text string
	Data string
}

// Document is a file attached to an outgoing message.
type Document struct {
	Name string
	MIME string
	Data []byte
}

// Outgoing is one message for Sender.Send. Zero-value keyboards mean
// "leave the current keyboard as is".
type Outgoing struct {
	Text string

	// Keyboard replaces the persistent reply keyboard, rows of labels
	Keyboard [][]string

	// InlineKeyboard attaches inline buttons to this message
	InlineKeyboard [][]InlineButton

	// Document attaches a file (used for the contact card)
	Document *Document
}

// Sender delivers outbound messages to a single user.
type Sender interface {
	Send(ctx context.Context, userID int64, msg Outgoing) error

	// Typing shows a typing indicator while a slow answer is prepared.
	// Errors are advisory and safe to ignore.
	Typing(ctx context.Context, userID int64) error
}

// Source delivers inbound updates, one handler call per update, until
// ctx is cancelled. Run blocks for the lifetime of the source.
type Source interface {
	Run(ctx context.Context, handle func(context.Context, Update)) error
}

// Text is a convenience constructor for a plain text reply.
func Text(s string) Outgoing {
	return Outgoing{Text: s}
}
