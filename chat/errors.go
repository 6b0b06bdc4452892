package chat

import (
	"errors"
	"fmt"
	"time"
)

// ErrForbidden means the recipient blocked the bot or deleted the chat.
// Senders must return it (wrapped is fine) so broadcast fan-out can
// auto-unsubscribe the recipient instead of retrying forever.
var ErrForbidden = errors.New("recipient is unreachable")

// RetryAfterError is returned by Senders when the platform applies rate
// limiting and names the wait it demands.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited by platform, retry after %s", e.After)
}

// IsForbidden reports whether err means the recipient is gone for good.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// RetryAfter extracts the platform-demanded wait from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.After, true
	}
	return 0, false
}
