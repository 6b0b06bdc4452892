// Package livechat manages the human-takeover state machine. Per user
// the bot is either answering (no active session) or silent while an
// operator talks to the customer through the admin panel.
package livechat

import (
	"context"
	"strings"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

// Transition outcomes. Stable strings, exposed by the admin API.
const (
	StatusAlreadyActive  = "already_active"
	StatusStarted        = "started"
	StatusTelegramFailed = "telegram_failed"
	StatusAlreadyEnded   = "already_ended"
	StatusEnded          = "ended"
	StatusSessionEnded   = "session_ended"
	StatusEmptyMessage   = "empty_message"
	StatusSent           = "sent"
)

// Customer-facing transition messages.
const (
	joinedMessage = "👤 נציג אנושי הצטרף לשיחה. כעת תקבלו מענה ישיר."
	endedMessage  = "🤖 הבוט חזר לנהל את השיחה. אם תרצו לדבר עם נציג שוב, לחצו על 'דברו עם נציג'."
)

// Service owns all live-chat transitions so the idempotency guards and
// notify/deactivate ordering live in one place.
type Service struct {
	db     *store.Store
	sender chat.Sender
}

func New(db *store.Store, sender chat.Sender) *Service {
	return &Service{db: db, sender: sender}
}

// Active reports whether the user has an active session.
func (s *Service) Active(userID int64) bool {
	session, err := s.db.ActiveLiveChat(userID)
	if err != nil {
		log.Log.Errorf("[LiveChat] failed to check session for %d: %v", userID, err)
		return false
	}
	return session != nil
}

// Session returns the active session, nil when there is none.
func (s *Service) Session(userID int64) (*model.LiveChatSession, error) {
	return s.db.ActiveLiveChat(userID)
}

// AllActive returns every active session.
func (s *Service) AllActive() ([]model.LiveChatSession, error) {
	return s.db.ListActiveLiveChats()
}

// Start moves the user into live chat. Idempotent: an existing active
// session reports already_active. A failed customer notification keeps
// the state change and reports telegram_failed.
func (s *Service) Start(ctx context.Context, userID int64, username string) (bool, string) {
	if s.Active(userID) {
		return true, StatusAlreadyActive
	}

	if _, err := s.db.StartLiveChat(userID, username); err != nil {
		log.Log.Errorf("[LiveChat] failed to start session for %d: %v", userID, err)
		return false, StatusTelegramFailed
	}

	if err := s.sender.Send(ctx, userID, chat.Text(joinedMessage)); err != nil {
		log.Log.Errorf("[LiveChat] failed to notify %d of takeover: %v", userID, err)
		return false, StatusTelegramFailed
	}
	if _, err := s.db.SaveMessage(userID, username, model.RoleAssistant, joinedMessage, nil); err != nil {
		log.Log.Errorf("[LiveChat] failed to persist takeover message: %v", err)
	}

	return true, StatusStarted
}

// End moves the user back to the bot. The "bot is back" message is
// sent and persisted before the session deactivates, so the bot cannot
// answer a customer message ahead of the transition notice.
func (s *Service) End(ctx context.Context, userID int64) (bool, string) {
	session, err := s.db.ActiveLiveChat(userID)
	if err != nil {
		log.Log.Errorf("[LiveChat] failed to load session for %d: %v", userID, err)
		return false, StatusAlreadyEnded
	}
	if session == nil {
		return true, StatusAlreadyEnded
	}

	sent := true
	if err := s.sender.Send(ctx, userID, chat.Text(endedMessage)); err != nil {
		log.Log.Errorf("[LiveChat] failed to notify %d of handback: %v", userID, err)
		sent = false
	} else if _, err := s.db.SaveMessage(userID, session.Username, model.RoleAssistant, endedMessage, nil); err != nil {
		log.Log.Errorf("[LiveChat] failed to persist handback message: %v", err)
	}

	if _, err := s.db.EndLiveChat(session.ID); err != nil {
		log.Log.Errorf("[LiveChat] failed to end session %d: %v", session.ID, err)
		return false, StatusTelegramFailed
	}

	if sent {
		return true, StatusEnded
	}
	return false, StatusTelegramFailed
}

// SendOperatorMessage delivers an operator message to the customer and
// records it as an assistant turn. Requires an active session and a
// non-empty message.
func (s *Service) SendOperatorMessage(ctx context.Context, userID int64, text string) (bool, string) {
	session, err := s.db.ActiveLiveChat(userID)
	if err != nil || session == nil {
		return false, StatusSessionEnded
	}
	if strings.TrimSpace(text) == "" {
		return false, StatusEmptyMessage
	}

	if err := s.sender.Send(ctx, userID, chat.Text(text)); err != nil {
		log.Log.Errorf("[LiveChat] failed to deliver operator message to %d: %v", userID, err)
		return false, StatusTelegramFailed
	}
	if _, err := s.db.SaveMessage(userID, session.Username, model.RoleAssistant, text, nil); err != nil {
		log.Log.Errorf("[LiveChat] failed to persist operator message: %v", err)
	}

	return true, StatusSent
}

// SweepStale ends sessions left active by a previous run. Called on
// bot startup only, so an admin-only process leaves sessions alone.
func (s *Service) SweepStale() {
	n, err := s.db.EndAllLiveChats()
	if err != nil {
		log.Log.Errorf("[LiveChat] failed to sweep stale sessions: %v", err)
		return
	}
	if n > 0 {
		log.Log.Infof("[LiveChat] closed %d stale sessions from a previous run", n)
	}
}
