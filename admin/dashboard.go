package admin

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/bizbot-il/bizbot/log"
)

func (p *Panel) handleDashboard(c *gin.Context) {
	stats, err := p.db.Stats()
	if err != nil {
		log.Log.Errorf("failed to load dashboard stats: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">לוח בקרה</h3><div class="row">`)
	b.WriteString(statCard("שיחות", "chat-dots", "primary", stats.Conversations))
	b.WriteString(statCard("הודעות", "envelope", "primary", stats.Messages))
	b.WriteString(statCard("תורים ממתינים", "calendar-check", "warning", stats.PendingAppointments))
	b.WriteString(statCard("בקשות נציג", "person-raised-hand", "warning", stats.PendingAgentRequests))
	b.WriteString(statCard("פערי ידע", "question-circle", "danger", stats.OpenQuestions))
	b.WriteString(statCard("צ'אטים חיים", "headset", "success", stats.ActiveLiveChats))
	b.WriteString(statCard("מנויים", "people", "info", stats.Subscribers))
	b.WriteString(statCard("הפניות שהושלמו", "gift", "success", stats.CompletedReferrals))
	b.WriteString(`</div>`)

	b.WriteString(cardStart("פעילות 14 הימים האחרונים", "bar-chart"))
	b.WriteString(p.activityChartHTML())
	b.WriteString(cardEnd())

	p.renderPage(c, "לוח בקרה", "/", b.String())
}

// activityChartHTML renders the messages-per-day bar chart as an HTML
// fragment. The default asset host is swapped for the jsdelivr CDN.
func (p *Panel) activityChartHTML() string {
	counts, err := p.db.MessageCountsByDay(14)
	if err != nil {
		log.Log.Errorf("failed to load activity counts: %v", err)
		return `<p class="text-muted">אין נתוני פעילות להצגה.</p>`
	}
	if len(counts) == 0 {
		return `<p class="text-muted">אין נתוני פעילות להצגה.</p>`
	}

	days := make([]string, 0, len(counts))
	values := make([]opts.BarData, 0, len(counts))
	for _, dc := range counts {
		days = append(days, dc.Date)
		values = append(values, opts.BarData{Value: dc.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "100%",
			Height: "340px",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(days).AddSeries("הודעות", values)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		log.Log.Errorf("failed to render activity chart: %v", err)
		return `<p class="text-muted">שגיאה בבניית הגרף.</p>`
	}

	return strings.Replace(buf.String(),
		`<script src="https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"></script>`,
		`<script src="https://cdn.jsdelivr.net/npm/echarts@5/dist/echarts.min.js"></script>`,
		-1)
}

// handleAPIStats serves the dashboard counters as JSON for polling.
func (p *Panel) handleAPIStats(c *gin.Context) {
	stats, err := p.db.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to load stats: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending_requests":     stats.PendingAgentRequests,
		"pending_appointments": stats.PendingAppointments,
		"active_live_chats":    stats.ActiveLiveChats,
		"open_knowledge_gaps":  stats.OpenQuestions,
		"vacation_active":      p.vacation.Active(),
	})
}
