package admin

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

func (p *Panel) handleReferrals(c *gin.Context) {
	pending, err := p.db.CountReferrals(string(model.ReferralPending))
	if err != nil {
		log.Log.Errorf("failed to count pending referrals: %v", err)
	}
	completed, err := p.db.CountReferrals(string(model.ReferralCompleted))
	if err != nil {
		log.Log.Errorf("failed to count completed referrals: %v", err)
	}
	top, err := p.db.TopReferrers(10)
	if err != nil {
		log.Log.Errorf("failed to load top referrers: %v", err)
	}
	recent, err := p.db.ListReferrals(50)
	if err != nil {
		log.Log.Errorf("failed to list referrals: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">תוכנית הפניות</h3><div class="row">`)
	b.WriteString(statCard("הפניות פתוחות", "hourglass-split", "warning", pending))
	b.WriteString(statCard("הפניות שהושלמו", "check-circle", "success", completed))
	b.WriteString(statCard("סה\"כ קודים", "ticket-perforated", "primary", pending+completed))
	b.WriteString(`</div>`)

	b.WriteString(cardStart("מפנים מובילים", "trophy"))
	if len(top) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין עדיין הפניות שהושלמו.</p>`)
	} else {
		b.WriteString(tableStart("מקום", "לקוח", "הפניות שהושלמו"))
		for i, r := range top {
			name := r.Username
			if name == "" {
				name = fmt.Sprintf("User %d", r.UserID)
			}
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s</td><td>%d</td></tr>`, i+1, esc(name), r.Completed)
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	b.WriteString(cardStart("הפניות אחרונות", "gift"))
	if len(recent) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין עדיין הפניות.</p>`)
	} else {
		b.WriteString(tableStart("קוד", "מפנה", "מופנה", "סטטוס", "נוצר"))
		for _, r := range recent {
			referred := "-"
			if r.ReferredID != 0 {
				referred = fmt.Sprintf("User %d", r.ReferredID)
			}
			fmt.Fprintf(&b, `<tr><td><code>%s</code></td><td>User %d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				esc(r.Code), r.ReferrerID, esc(referred), statusBadge(string(r.Status)), fmtTime(r.CreatedAt))
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "הפניות", "/referrals", b.String())
}
