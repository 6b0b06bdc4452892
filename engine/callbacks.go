package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bizbot-il/bizbot/chat"
)

const followUpPrefix = "fu:"

const (
	cancelAcceptedText = "קיבלתי את בקשתכם לביטול התור. ✅\n\n" +
		"העברתי את הבקשה לצוות שלנו — נציג יחזור אליכם בקרוב לאשר את הביטול."

	cancelKeptText = "בסדר גמור, התור נשאר! 👍\nאיך עוד אפשר לעזור?"

	followUpExpiredText = "ההצעה הזו כבר לא זמינה — אפשר פשוט לכתוב את השאלה כאן 🙂"
)

// handleCallback routes inline-button presses. Rate limiting does not
// apply to callbacks; the live-chat guard does, silently.
func (e *Engine) handleCallback(ctx context.Context, u chat.Update) {
	if e.livechat.Active(u.UserID) {
		return
	}

	switch {
	case u.CallbackData == "cancel_appt_yes":
		e.notifyAgentRequest(ctx, u, "הלקוח אישר ביטול תור.")
		e.saveAssistant(u, cancelAcceptedText, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: cancelAcceptedText, Keyboard: MainKeyboard()})

	case u.CallbackData == "cancel_appt_no":
		e.saveAssistant(u, cancelKeptText, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: cancelKeptText, Keyboard: MainKeyboard()})

	case strings.HasPrefix(u.CallbackData, followUpPrefix):
		e.followUpCallback(ctx, u)
	}
}

// followUpCallback replays a suggested question through the regular
// answer pipeline. Suggestions are indexed, not inlined, because
// callback payloads are size-limited; after a restart the index no
// longer resolves and the customer is asked to type the question.
func (e *Engine) followUpCallback(ctx context.Context, u chat.Update) {
	index, err := strconv.Atoi(strings.TrimPrefix(u.CallbackData, followUpPrefix))
	if err != nil {
		return
	}
	question, ok := e.followUpQuestion(u.UserID, index)
	if !ok {
		e.send(ctx, u.UserID, chat.Text(followUpExpiredText))
		return
	}

	e.ragReply(ctx, u, question, question, fmt.Sprintf("הלקוח ביקש עזרה בנושא: %s", question))
}
