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

func (p *Panel) handleRequests(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		status = "pending"
	}
	requests, err := p.db.ListAgentRequests(statusFilter(status))
	if err != nil {
		log.Log.Errorf("failed to list agent requests: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">בקשות נציג</h3>`)
	b.WriteString(filterTabs("/requests", status, [][2]string{
		{"pending", "ממתינות"}, {"handled", "טופלו"}, {"dismissed", "נדחו"}, {"all", "הכל"},
	}))

	b.WriteString(cardStart(fmt.Sprintf("בקשות (%d)", len(requests)), "person-raised-hand"))
	if len(requests) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין בקשות להצגה.</p>`)
	} else {
		b.WriteString(tableStart("#", "לקוח", "סיבה", "סטטוס", "נוצר", ""))
		for _, r := range requests {
			handle := r.PlatformHandle
			if handle == "" {
				handle = "(ללא שם משתמש)"
			} else {
				handle = "@" + handle
			}
			actions := ""
			if r.Status == model.AgentRequestPending {
				actions = postButton(c, fmt.Sprintf("/requests/%d/handle", r.ID), "טופל", "btn-success", map[string]string{"status": "handled"}) +
					" " +
					postButton(c, fmt.Sprintf("/requests/%d/handle", r.ID), "דחייה", "btn-outline-danger", map[string]string{"status": "dismissed"})
			}
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s<br><small class="text-muted">%s</small><br><a href="/live-chat/%d" class="small">לשיחה</a></td><td>%s</td><td>%s</td><td>%s</td><td class="text-nowrap">%s</td></tr>`,
				r.ID, esc(r.Username), esc(handle), r.UserID, esc(r.Reason), statusBadge(string(r.Status)), fmtTime(r.CreatedAt), actions)
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "בקשות נציג", "/requests", b.String())
}

func (p *Panel) handleRequestUpdate(c *gin.Context) {
	id := paramID(c, "id")
	status := model.AgentRequestStatus(c.PostForm("status"))

	if status != model.AgentRequestHandled && status != model.AgentRequestDismissed {
		p.setFlash(c, "סטטוס לא חוקי.", "danger")
		c.Redirect(http.StatusFound, "/requests")
		return
	}

	if err := p.db.UpdateAgentRequestStatus(id, status); err != nil {
		log.Log.Errorf("failed to update agent request %d: %v", id, err)
		p.setFlash(c, "שגיאה בעדכון הבקשה.", "danger")
	} else {
		p.setFlash(c, "הבקשה עודכנה.", "success")
	}
	c.Redirect(http.StatusFound, "/requests")
}

func (p *Panel) handleAppointments(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		status = "pending"
	}
	appointments, err := p.db.ListAppointments(statusFilter(status))
	if err != nil {
		log.Log.Errorf("failed to list appointments: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">תורים</h3>`)
	b.WriteString(filterTabs("/appointments", status, [][2]string{
		{"pending", "ממתינים"}, {"confirmed", "אושרו"}, {"cancelled", "בוטלו"}, {"all", "הכל"},
	}))

	b.WriteString(cardStart(fmt.Sprintf("בקשות תור (%d)", len(appointments)), "calendar-check"))
	if len(appointments) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין תורים להצגה.</p>`)
	} else {
		b.WriteString(tableStart("#", "לקוח", "שירות", "תאריך", "שעה", "סטטוס", "נוצר", ""))
		for _, a := range appointments {
			actions := ""
			if a.Status == model.AppointmentPending {
				actions = fmt.Sprintf(`<form method="post" action="/appointments/%d/update" class="d-flex gap-1">%s
<input type="text" class="form-control form-control-sm" name="owner_message" placeholder="הערה ללקוח (רשות)">
<button type="submit" name="status" value="confirmed" class="btn btn-sm btn-success">אישור</button>
<button type="submit" name="status" value="cancelled" class="btn btn-sm btn-outline-danger">ביטול</button>
</form>`, a.ID, csrfField(c))
			}
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s<br><a href="/live-chat/%d" class="small">לשיחה</a></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td style="min-width: 280px;">%s</td></tr>`,
				a.ID, esc(a.Username), a.UserID, esc(a.Service), esc(a.PreferredDate), esc(a.PreferredTime),
				statusBadge(string(a.Status)), fmtTime(a.CreatedAt), actions)
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "תורים", "/appointments", b.String())
}

// handleAppointmentUpdate flips an appointment's status and notifies
// the customer through the chat engine, off the request path.
func (p *Panel) handleAppointmentUpdate(c *gin.Context) {
	id := paramID(c, "id")
	status := model.AppointmentStatus(c.PostForm("status"))
	ownerMessage := strings.TrimSpace(c.PostForm("owner_message"))

	if status != model.AppointmentConfirmed && status != model.AppointmentCancelled {
		p.setFlash(c, "סטטוס לא חוקי.", "danger")
		c.Redirect(http.StatusFound, "/appointments")
		return
	}

	appt, err := p.db.GetAppointment(id)
	if err != nil || appt == nil {
		p.setFlash(c, "התור לא נמצא.", "danger")
		c.Redirect(http.StatusFound, "/appointments")
		return
	}

	if err := p.db.UpdateAppointmentStatus(id, status); err != nil {
		log.Log.Errorf("failed to update appointment %d: %v", id, err)
		p.setFlash(c, "שגיאה בעדכון התור.", "danger")
		c.Redirect(http.StatusFound, "/appointments")
		return
	}
	appt.Status = status

	if p.notifier != nil {
		notifyAppt := *appt
		p.dispatcher.Dispatch(func(ctx context.Context) {
			p.notifier.AppointmentStatusChanged(ctx, &notifyAppt, ownerMessage)
		})
	}

	if status == model.AppointmentConfirmed {
		p.setFlash(c, "התור אושר והלקוח קיבל הודעה.", "success")
	} else {
		p.setFlash(c, "התור בוטל והלקוח קיבל הודעה.", "success")
	}
	c.Redirect(http.StatusFound, "/appointments")
}

func (p *Panel) handleKnowledgeGaps(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		status = "open"
	}
	questions, err := p.db.ListUnansweredQuestions(statusFilter(status))
	if err != nil {
		log.Log.Errorf("failed to list unanswered questions: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">פערי ידע</h3>
<p class="text-muted">שאלות שהבוט לא הצליח לענות עליהן מהמאגר. הוסיפו רשומת ידע כדי לסגור את הפער.</p>`)
	b.WriteString(filterTabs("/knowledge-gaps", status, [][2]string{
		{"open", "פתוחים"}, {"resolved", "נסגרו"}, {"all", "הכל"},
	}))

	b.WriteString(cardStart(fmt.Sprintf("שאלות (%d)", len(questions)), "question-circle"))
	if len(questions) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין שאלות להצגה. כל הכבוד!</p>`)
	} else {
		b.WriteString(tableStart("#", "לקוח", "שאלה", "סטטוס", "נשאל", ""))
		for _, q := range questions {
			actions := ""
			if q.Status == model.QuestionOpen {
				actions = fmt.Sprintf(`<a href="/kb/add?gap_id=%d" class="btn btn-sm btn-primary">הוספת תשובה</a> `, q.ID) +
					postButton(c, fmt.Sprintf("/knowledge-gaps/%d/resolve", q.ID), "סגירה", "btn-outline-secondary", nil)
			}
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td class="text-nowrap">%s</td></tr>`,
				q.ID, esc(q.Username), esc(q.Question), statusBadge(string(q.Status)), fmtTime(q.CreatedAt), actions)
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "פערי ידע", "/knowledge-gaps", b.String())
}

func (p *Panel) handleGapResolve(c *gin.Context) {
	id := paramID(c, "id")
	if err := p.db.ResolveUnansweredQuestion(id); err != nil {
		log.Log.Errorf("failed to resolve knowledge gap %d: %v", id, err)
		p.setFlash(c, "שגיאה בסגירת הפער.", "danger")
	} else {
		p.setFlash(c, "הפער נסגר.", "success")
	}
	c.Redirect(http.StatusFound, "/knowledge-gaps")
}

// statusFilter maps the "all" tab to the store's empty filter.
func statusFilter(status string) string {
	if status == "all" {
		return ""
	}
	return status
}

// filterTabs renders the status filter buttons above a listing.
func filterTabs(base, current string, tabs [][2]string) string {
	var b strings.Builder
	b.WriteString(`<div class="mb-3">`)
	for _, tab := range tabs {
		cls := "btn-outline-secondary"
		if tab[0] == current {
			cls = "btn-secondary"
		}
		fmt.Fprintf(&b, `<a href="%s?status=%s" class="btn btn-sm %s me-1">%s</a>`, base, tab[0], cls, esc(tab[1]))
	}
	b.WriteString(`</div>`)
	return b.String()
}
