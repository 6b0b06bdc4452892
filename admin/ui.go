package admin

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// esc escapes user-controlled text for HTML output.
func esc(s string) string {
	return template.HTMLEscapeString(s)
}

var navItems = []struct {
	Path  string
	Icon  string
	Label string
}{
	{"/", "speedometer2", "לוח בקרה"},
	{"/kb", "journal-text", "מאגר ידע"},
	{"/conversations", "chat-dots", "שיחות"},
	{"/requests", "person-raised-hand", "בקשות נציג"},
	{"/appointments", "calendar-check", "תורים"},
	{"/knowledge-gaps", "question-circle", "פערי ידע"},
	{"/business-hours", "clock", "שעות פעילות"},
	{"/vacation-mode", "airplane", "מצב חופשה"},
	{"/bot-personality", "robot", "אישיות הבוט"},
	{"/referrals", "gift", "הפניות"},
	{"/broadcast", "megaphone", "תפוצה"},
	{"/qr-code", "qr-code", "קוד QR"},
}

// pageHeader opens the HTML document. Hebrew panel, so RTL Bootstrap.
func pageHeader(title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="he" dir="rtl">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.2/dist/css/bootstrap.rtl.min.css" rel="stylesheet">
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap-icons@1.11.1/font/bootstrap-icons.css">
    <style>
        body { background-color: #f5f6fa; }
        .navbar-brand { font-weight: 600; }
        .card { border: none; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
        .stat-number { font-size: 2rem; font-weight: 700; }
        .chat-bubble { border-radius: 1rem; padding: .5rem 1rem; margin-bottom: .5rem; max-width: 75%%; }
        .chat-user { background: #e9ecef; }
        .chat-assistant { background: #d1e7ff; margin-right: auto; }
    </style>
</head>
<body>`, esc(title))
}

func pageFooter() string {
	return `
    <script src="https://cdn.jsdelivr.net/npm/bootstrap@5.3.2/dist/js/bootstrap.bundle.min.js"></script>
</body>
</html>`
}

// navbar renders the top navigation with the current page highlighted.
func navbar(currentPath, businessName string) string {
	var b strings.Builder
	b.WriteString(`<nav class="navbar navbar-expand-lg navbar-dark bg-dark mb-4">
<div class="container-fluid">
<a class="navbar-brand" href="/"><i class="bi bi-shop me-2"></i>` + esc(businessName) + `</a>
<button class="navbar-toggler" type="button" data-bs-toggle="collapse" data-bs-target="#nav"><span class="navbar-toggler-icon"></span></button>
<div class="collapse navbar-collapse" id="nav"><ul class="navbar-nav">`)
	for _, item := range navItems {
		active := ""
		if item.Path == currentPath {
			active = " active"
		}
		fmt.Fprintf(&b, `<li class="nav-item"><a class="nav-link%s" href="%s"><i class="bi bi-%s me-1"></i>%s</a></li>`,
			active, item.Path, item.Icon, item.Label)
	}
	b.WriteString(`</ul><ul class="navbar-nav ms-auto"><li class="nav-item"><a class="nav-link" href="/logout"><i class="bi bi-box-arrow-left me-1"></i>יציאה</a></li></ul></div></div></nav>`)
	return b.String()
}

// renderPage writes a complete authenticated page, consuming the
// pending flash message if one exists.
func (p *Panel) renderPage(c *gin.Context, title, currentPath, content string) {
	message, level := p.takeFlash(c)
	flash := ""
	if message != "" {
		flash = fmt.Sprintf(`<div class="alert alert-%s alert-dismissible fade show">%s<button type="button" class="btn-close" data-bs-dismiss="alert"></button></div>`,
			esc(level), esc(message))
	}

	html := pageHeader(title) +
		navbar(currentPath, p.cfg.Business.Name) +
		`<div class="container">` + flash + content + `</div>` +
		pageFooter()

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(200, html)
}

// renderLogin writes the unauthenticated login page.
func (p *Panel) renderLogin(c *gin.Context) {
	message, level := p.takeFlash(c)
	flash := ""
	if message != "" {
		flash = fmt.Sprintf(`<div class="alert alert-%s">%s</div>`, esc(level), esc(message))
	}

	html := pageHeader("התחברות") + fmt.Sprintf(`
<div class="container" style="max-width: 420px; margin-top: 10vh;">
    %s
    <div class="card">
        <div class="card-body p-4">
            <h4 class="mb-3 text-center"><i class="bi bi-shield-lock me-2"></i>%s</h4>
            <form method="post" action="/login">
                <div class="mb-3">
                    <label class="form-label">שם משתמש</label>
                    <input type="text" class="form-control" name="username" required autofocus>
                </div>
                <div class="mb-3">
                    <label class="form-label">סיסמה</label>
                    <input type="password" class="form-control" name="password" required>
                </div>
                <button type="submit" class="btn btn-primary w-100">כניסה</button>
            </form>
        </div>
    </div>
</div>`, flash, esc(p.cfg.Business.Name)) + pageFooter()

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(200, html)
}

// cardStart opens a Bootstrap card with an icon header.
func cardStart(title, icon string) string {
	return fmt.Sprintf(`<div class="card mb-4">
    <div class="card-header bg-white">
        <h5 class="mb-0"><i class="bi bi-%s me-2"></i>%s</h5>
    </div>
    <div class="card-body">`, icon, esc(title))
}

func cardEnd() string {
	return `</div></div>`
}

// statCard renders one dashboard counter.
func statCard(label, icon, color string, value int) string {
	return fmt.Sprintf(`<div class="col-6 col-md-3 mb-3">
    <div class="card text-center h-100">
        <div class="card-body">
            <i class="bi bi-%s text-%s" style="font-size: 1.5rem;"></i>
            <div class="stat-number text-%s">%d</div>
            <div class="text-muted small">%s</div>
        </div>
    </div>
</div>`, icon, color, color, value, esc(label))
}

// tableStart opens a responsive striped table with the given headers.
func tableStart(headers ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="table-responsive"><table class="table table-striped align-middle"><thead><tr>`)
	for _, h := range headers {
		b.WriteString("<th>" + esc(h) + "</th>")
	}
	b.WriteString(`</tr></thead><tbody>`)
	return b.String()
}

func tableEnd() string {
	return `</tbody></table></div>`
}

// statusBadge maps a lifecycle status to a colored badge.
func statusBadge(status string) string {
	color := "secondary"
	label := status
	switch status {
	case "pending", "open", "queued":
		color, label = "warning", "ממתין"
	case "confirmed", "completed", "handled", "resolved":
		color, label = "success", "טופל"
	case "cancelled", "dismissed", "failed":
		color, label = "danger", "בוטל"
	case "sending":
		color, label = "info", "בשליחה"
	case "active":
		color, label = "success", "פעיל"
	}
	return fmt.Sprintf(`<span class="badge bg-%s">%s</span>`, color, esc(label))
}

// postButton renders a one-field inline form for a POST action.
func postButton(c *gin.Context, action, label, class string, hidden map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<form method="post" action="%s" class="d-inline">%s`, action, csrfField(c))
	for name, value := range hidden {
		fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`, esc(name), esc(value))
	}
	fmt.Fprintf(&b, `<button type="submit" class="btn btn-sm %s">%s</button></form>`, class, label)
	return b.String()
}

// fmtTime formats a timestamp for table cells, empty for zero times.
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}
