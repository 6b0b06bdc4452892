package admin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

var audienceLabels = []struct {
	Value string
	Label string
}{
	{model.AudienceAll, "כל המנויים"},
	{model.AudienceActive7d, "פעילים בשבוע האחרון"},
	{model.AudienceActive30d, "פעילים בחודש האחרון"},
}

func (p *Panel) handleBroadcastPage(c *gin.Context) {
	subscribers, err := p.db.CountSubscribers()
	if err != nil {
		log.Log.Errorf("failed to count subscribers: %v", err)
	}
	history, err := p.db.ListBroadcasts(20)
	if err != nil {
		log.Log.Errorf("failed to list broadcasts: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">הודעת תפוצה</h3>`)

	b.WriteString(cardStart(fmt.Sprintf("שליחה חדשה (%d מנויים)", subscribers), "megaphone"))
	fmt.Fprintf(&b, `<form method="post" action="/broadcast">%s
<div class="mb-3"><label class="form-label">קהל יעד</label>
<select class="form-select" name="audience">`, csrfField(c))
	for _, a := range audienceLabels {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, a.Value, esc(a.Label))
	}
	b.WriteString(`</select></div>
<div class="mb-3"><label class="form-label">תוכן ההודעה</label>
<textarea class="form-control" name="message" rows="5" required placeholder="ההודעה תישלח לכל הנמענים שבחרתם"></textarea></div>
<button type="submit" class="btn btn-primary" onclick="return confirm('לשלוח את ההודעה לכל הנמענים?')"><i class="bi bi-send me-1"></i>שליחה</button>
</form>`)
	b.WriteString(cardEnd())

	b.WriteString(cardStart("היסטוריית שליחות", "clock-history"))
	if len(history) == 0 {
		b.WriteString(`<p class="text-muted mb-0">עדיין לא נשלחו הודעות תפוצה.</p>`)
	} else {
		b.WriteString(tableStart("הודעה", "קהל", "נשלחו", "נכשלו", "סטטוס", "נוצר"))
		for _, bc := range history {
			text := bc.Text
			if len([]rune(text)) > 60 {
				text = string([]rune(text)[:60]) + "…"
			}
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%d/%d</td><td>%d</td><td>%s</td><td>%s</td></tr>`,
				esc(text), esc(audienceLabel(bc.Audience)), bc.SentCount, bc.RecipientCount, bc.FailedCount,
				statusBadge(string(bc.Status)), fmtTime(bc.CreatedAt))
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "תפוצה", "/broadcast", b.String())
}

// handleBroadcastSend creates the job and schedules delivery through
// the dispatcher; the page returns immediately with the queued job.
func (p *Panel) handleBroadcastSend(c *gin.Context) {
	message := strings.TrimSpace(c.PostForm("message"))
	audience := c.PostForm("audience")

	if message == "" {
		p.setFlash(c, "אי אפשר לשלוח הודעה ריקה.", "danger")
		c.Redirect(http.StatusFound, "/broadcast")
		return
	}
	if audience != model.AudienceAll && audience != model.AudienceActive7d && audience != model.AudienceActive30d {
		audience = model.AudienceAll
	}
	if p.broadcaster == nil {
		p.setFlash(c, "שליחת תפוצה אינה זמינה במצב ניהול בלבד.", "warning")
		c.Redirect(http.StatusFound, "/broadcast")
		return
	}

	id, recipients, err := p.broadcaster.Create(message, audience)
	if err != nil {
		log.Log.Errorf("failed to create broadcast: %v", err)
		p.setFlash(c, "שגיאה ביצירת הודעת התפוצה.", "danger")
		c.Redirect(http.StatusFound, "/broadcast")
		return
	}

	p.dispatcher.Dispatch(func(ctx context.Context) {
		p.broadcaster.Run(ctx, id, message, recipients)
	})

	p.setFlash(c, fmt.Sprintf("הודעת התפוצה נשלחת ל-%d נמענים.", len(recipients)), "success")
	c.Redirect(http.StatusFound, "/broadcast")
}

func audienceLabel(audience string) string {
	for _, a := range audienceLabels {
		if a.Value == audience {
			return a.Label
		}
	}
	return audience
}
