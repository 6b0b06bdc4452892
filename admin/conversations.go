package admin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

func (p *Panel) handleConversations(c *gin.Context) {
	items, err := p.db.ConversationOverview()
	if err != nil {
		log.Log.Errorf("failed to load conversations: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">שיחות</h3>`)
	b.WriteString(cardStart(fmt.Sprintf("לקוחות (%d)", len(items)), "chat-dots"))
	if len(items) == 0 {
		b.WriteString(`<p class="text-muted mb-0">עדיין אין שיחות.</p>`)
	} else {
		b.WriteString(tableStart("לקוח", "הודעות", "הודעה אחרונה", "זמן", ""))
		for _, item := range items {
			name := item.Username
			if name == "" {
				name = fmt.Sprintf("User %d", item.UserID)
			}
			last := item.LastText
			if len([]rune(last)) > 60 {
				last = string([]rune(last)[:60]) + "…"
			}
			live := ""
			if p.livechat.Active(item.UserID) {
				live = ` <span class="badge bg-success">צ'אט חי</span>`
			}
			fmt.Fprintf(&b, `<tr><td>%s%s</td><td>%d</td><td class="text-muted">%s</td><td>%s</td><td><a href="/live-chat/%d" class="btn btn-sm btn-outline-primary">צפייה</a></td></tr>`,
				esc(name), live, item.MessageCount, esc(last), fmtTime(item.LastAt), item.UserID)
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "שיחות", "/conversations", b.String())
}

// handleLiveChatPage shows one user's full history with the takeover
// controls. The page polls /api/live-chat/:user_id/messages while a
// session is active.
func (p *Panel) handleLiveChatPage(c *gin.Context) {
	userID := paramID(c, "user_id")
	history, err := p.db.UserHistory(userID)
	if err != nil {
		log.Log.Errorf("failed to load history for user %d: %v", userID, err)
	}

	username := fmt.Sprintf("User %d", userID)
	for _, m := range history {
		if m.Role == model.RoleUser && m.Username != "" {
			username = m.Username
		}
	}

	active := p.livechat.Active(userID)

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="d-flex justify-content-between align-items-center mb-4">
<h3 class="mb-0">שיחה עם %s</h3><div>`, esc(username))
	if active {
		b.WriteString(postButton(c, fmt.Sprintf("/live-chat/%d/end", userID), `<i class="bi bi-stop-circle me-1"></i>סיום צ'אט חי`, "btn-danger", nil))
	} else {
		b.WriteString(postButton(c, fmt.Sprintf("/live-chat/%d/start", userID), `<i class="bi bi-headset me-1"></i>התחלת צ'אט חי`, "btn-success", nil))
	}
	b.WriteString(`</div></div>`)

	if active {
		b.WriteString(`<div class="alert alert-success"><i class="bi bi-broadcast me-2"></i>צ'אט חי פעיל. הבוט מושתק; ההודעות שלכם נשלחות ישירות ללקוח.</div>`)
	}

	b.WriteString(cardStart("היסטוריית שיחה", "clock-history"))
	b.WriteString(`<div id="chat-box" style="max-height: 50vh; overflow-y: auto;">`)
	if len(history) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין עדיין הודעות.</p>`)
	}
	for _, m := range history {
		b.WriteString(messageBubble(m))
	}
	b.WriteString(`</div>`)
	b.WriteString(cardEnd())

	if active {
		fmt.Fprintf(&b, `<form method="post" action="/live-chat/%d/send" class="input-group mb-4">%s
<input type="text" class="form-control" name="message" placeholder="כתבו הודעה ללקוח..." required autofocus>
<button type="submit" class="btn btn-primary"><i class="bi bi-send"></i> שליחה</button>
</form>
<script>
const box = document.getElementById('chat-box');
box.scrollTop = box.scrollHeight;
setInterval(async () => {
    const res = await fetch('/api/live-chat/%d/messages');
    if (!res.ok) return;
    const data = await res.json();
    if (data.count > %d) location.reload();
}, 3000);
</script>`, userID, csrfField(c), userID, len(history))
	}

	p.renderPage(c, "צ'אט חי", "/conversations", b.String())
}

// messageBubble renders one history message, user messages on the
// right, bot and operator messages on the left.
func messageBubble(m model.Message) string {
	class := "chat-user"
	icon := "person"
	if m.Role == model.RoleAssistant {
		class = "chat-assistant"
		icon = "robot"
	}
	sources := ""
	if len(m.Sources) > 0 {
		sources = fmt.Sprintf(`<div class="small text-muted mt-1"><i class="bi bi-book me-1"></i>%s</div>`,
			esc(strings.Join(m.Sources, ", ")))
	}
	return fmt.Sprintf(`<div class="chat-bubble %s">
<div class="small text-muted"><i class="bi bi-%s me-1"></i>%s</div>
<div>%s</div>%s
</div>`, class, icon, fmtTime(m.CreatedAt), esc(m.Text), sources)
}

func (p *Panel) handleLiveChatStart(c *gin.Context) {
	userID := paramID(c, "user_id")
	username := c.PostForm("username")

	ok, status := p.livechat.Start(c.Request.Context(), userID, username)
	switch {
	case status == livechat.StatusAlreadyActive:
		p.setFlash(c, "כבר יש צ'אט חי פעיל עם הלקוח הזה.", "warning")
	case ok:
		p.setFlash(c, "צ'אט חי התחיל. הלקוח קיבל הודעה שנציג הצטרף.", "success")
	default:
		p.setFlash(c, "לא ניתן להתחיל צ'אט חי כרגע.", "danger")
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/live-chat/%d", userID))
}

func (p *Panel) handleLiveChatEnd(c *gin.Context) {
	userID := paramID(c, "user_id")

	ok, status := p.livechat.End(c.Request.Context(), userID)
	switch {
	case status == livechat.StatusAlreadyEnded:
		p.setFlash(c, "הצ'אט הזה כבר הסתיים.", "warning")
	case ok:
		p.setFlash(c, "הצ'אט החי הסתיים. הבוט חזר לפעול.", "success")
	default:
		p.setFlash(c, "לא ניתן לסיים את הצ'אט כרגע.", "danger")
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/live-chat/%d", userID))
}

func (p *Panel) handleLiveChatSend(c *gin.Context) {
	userID := paramID(c, "user_id")
	message := strings.TrimSpace(c.PostForm("message"))

	if message == "" {
		p.setFlash(c, "אי אפשר לשלוח הודעה ריקה.", "warning")
		c.Redirect(http.StatusFound, fmt.Sprintf("/live-chat/%d", userID))
		return
	}

	ok, status := p.livechat.SendOperatorMessage(c.Request.Context(), userID, message)
	switch {
	case ok:
		// No flash; the reloaded history shows the message.
	case status == livechat.StatusSessionEnded:
		p.setFlash(c, "אין צ'אט חי פעיל. התחילו אחד לפני שליחת הודעות.", "warning")
	default:
		p.setFlash(c, "שליחת ההודעה נכשלה.", "danger")
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/live-chat/%d", userID))
}

// handleAPILiveChatMessages reports the current message count and the
// latest rows, for the live-chat page poller.
func (p *Panel) handleAPILiveChatMessages(c *gin.Context) {
	userID := paramID(c, "user_id")
	history, err := p.db.UserHistory(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to load history: %v", err)})
		return
	}

	messages := make([]gin.H, 0, len(history))
	for _, m := range history {
		messages = append(messages, gin.H{
			"id":         m.ID,
			"role":       string(m.Role),
			"text":       m.Text,
			"created_at": m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(history),
		"active":   p.livechat.Active(userID),
		"messages": messages,
	})
}
