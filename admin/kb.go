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

func (p *Panel) handleKBList(c *gin.Context) {
	entries, err := p.db.ListKBEntries(false)
	if err != nil {
		log.Log.Errorf("failed to list kb entries: %v", err)
	}

	category := c.Query("category")
	categories := map[string]bool{}
	var filtered []model.KBEntry
	for _, e := range entries {
		categories[e.Category] = true
		if category == "" || e.Category == category {
			filtered = append(filtered, e)
		}
	}

	var b strings.Builder
	b.WriteString(`<div class="d-flex justify-content-between align-items-center mb-4">
<h3 class="mb-0">מאגר ידע</h3>
<div>
<a href="/kb/add" class="btn btn-primary"><i class="bi bi-plus-lg me-1"></i>רשומה חדשה</a>
` + postButton(c, "/kb/rebuild", `<i class="bi bi-arrow-repeat me-1"></i>בניית אינדקס מחדש`, "btn-outline-secondary", nil) + `
</div></div>`)

	if p.rag.IsStale() {
		b.WriteString(`<div class="alert alert-warning"><i class="bi bi-exclamation-triangle me-2"></i>האינדקס אינו מעודכן. בנו אותו מחדש כדי שהשינויים ישפיעו על תשובות הבוט.</div>`)
	}

	if len(categories) > 1 {
		b.WriteString(`<div class="mb-3">`)
		activeAll := " btn-secondary"
		if category != "" {
			activeAll = " btn-outline-secondary"
		}
		b.WriteString(`<a href="/kb" class="btn btn-sm` + activeAll + ` me-1">הכל</a>`)
		for cat := range categories {
			cls := " btn-outline-secondary"
			if cat == category {
				cls = " btn-secondary"
			}
			fmt.Fprintf(&b, `<a href="/kb?category=%s" class="btn btn-sm%s me-1">%s</a>`, esc(cat), cls, esc(cat))
		}
		b.WriteString(`</div>`)
	}

	b.WriteString(cardStart(fmt.Sprintf("רשומות (%d)", len(filtered)), "journal-text"))
	if len(filtered) == 0 {
		b.WriteString(`<p class="text-muted mb-0">אין רשומות במאגר. הוסיפו את הרשומה הראשונה.</p>`)
	} else {
		b.WriteString(tableStart("קטגוריה", "כותרת", "תוכן", "פעיל", "עודכן", ""))
		for _, e := range filtered {
			content := e.Content
			if len([]rune(content)) > 80 {
				content = string([]rune(content)[:80]) + "…"
			}
			active := `<span class="badge bg-success">פעיל</span>`
			if !e.Active {
				active = `<span class="badge bg-secondary">כבוי</span>`
			}
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td class="text-muted">%s</td><td>%s</td><td>%s</td><td class="text-nowrap">
<a href="/kb/edit/%d" class="btn btn-sm btn-outline-primary">עריכה</a>
%s
</td></tr>`,
				esc(e.Category), esc(e.Title), esc(content), active, fmtTime(e.UpdatedAt), e.ID,
				postButton(c, fmt.Sprintf("/kb/delete/%d", e.ID), "מחיקה", "btn-outline-danger", nil))
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "מאגר ידע", "/kb", b.String())
}

// kbForm renders the add/edit form. entry is nil for a new record.
func (p *Panel) kbForm(c *gin.Context, action string, entry *model.KBEntry, gapID string) string {
	var category, title, content string
	active := true
	if entry != nil {
		category, title, content, active = entry.Category, entry.Title, entry.Content, entry.Active
	}

	activeBox := ""
	if entry != nil {
		checked := ""
		if active {
			checked = " checked"
		}
		activeBox = fmt.Sprintf(`<div class="form-check mb-3"><input class="form-check-input" type="checkbox" name="active" value="1"%s id="active"><label class="form-check-label" for="active">פעיל (משתתף באחזור)</label></div>`, checked)
	}

	gapField := ""
	if gapID != "" {
		gapField = fmt.Sprintf(`<input type="hidden" name="gap_id" value="%s">`, esc(gapID))
	}

	return fmt.Sprintf(`<form method="post" action="%s">%s%s
<div class="mb-3"><label class="form-label">קטגוריה</label>
<input type="text" class="form-control" name="category" value="%s" placeholder="למשל: מחירון, שירותים, מדיניות" required></div>
<div class="mb-3"><label class="form-label">כותרת</label>
<input type="text" class="form-control" name="title" value="%s" required></div>
<div class="mb-3"><label class="form-label">תוכן</label>
<textarea class="form-control" name="content" rows="8" required>%s</textarea></div>
%s
<button type="submit" class="btn btn-primary">שמירה</button>
<a href="/kb" class="btn btn-outline-secondary">ביטול</a>
</form>`, action, csrfField(c), gapField, esc(category), esc(title), esc(content), activeBox)
}

func (p *Panel) handleKBAddPage(c *gin.Context) {
	content := cardStart("רשומה חדשה", "plus-circle") +
		p.kbForm(c, "/kb/add", nil, c.Query("gap_id")) +
		cardEnd()
	p.renderPage(c, "רשומה חדשה", "/kb", content)
}

func (p *Panel) handleKBAdd(c *gin.Context) {
	category := strings.TrimSpace(c.PostForm("category"))
	title := strings.TrimSpace(c.PostForm("title"))
	content := strings.TrimSpace(c.PostForm("content"))

	if category == "" || title == "" || content == "" {
		p.setFlash(c, "כל השדות הם חובה.", "danger")
		c.Redirect(http.StatusFound, "/kb/add")
		return
	}

	if _, err := p.db.CreateKBEntry(category, title, content); err != nil {
		log.Log.Errorf("failed to create kb entry: %v", err)
		p.setFlash(c, "שגיאה בשמירת הרשומה.", "danger")
		c.Redirect(http.StatusFound, "/kb/add")
		return
	}
	p.rag.MarkStale()

	// Adding an answer from a knowledge-gap page resolves that gap.
	if gapID := c.PostForm("gap_id"); gapID != "" {
		if id := parseID(gapID); id > 0 {
			if err := p.db.ResolveUnansweredQuestion(id); err != nil {
				log.Log.Warnf("failed to resolve knowledge gap %d: %v", id, err)
			}
		}
	}

	p.setFlash(c, "הרשומה נוספה בהצלחה! בנו את האינדקס מחדש כדי להחיל אותה.", "success")
	c.Redirect(http.StatusFound, "/kb")
}

func (p *Panel) handleKBEditPage(c *gin.Context) {
	entry, err := p.db.GetKBEntry(paramID(c, "id"))
	if err != nil || entry == nil {
		p.setFlash(c, "הרשומה לא נמצאה.", "danger")
		c.Redirect(http.StatusFound, "/kb")
		return
	}
	content := cardStart("עריכת רשומה", "pencil") +
		p.kbForm(c, fmt.Sprintf("/kb/edit/%d", entry.ID), entry, "") +
		cardEnd()
	p.renderPage(c, "עריכת רשומה", "/kb", content)
}

func (p *Panel) handleKBEdit(c *gin.Context) {
	id := paramID(c, "id")
	category := strings.TrimSpace(c.PostForm("category"))
	title := strings.TrimSpace(c.PostForm("title"))
	content := strings.TrimSpace(c.PostForm("content"))
	active := c.PostForm("active") == "1"

	if category == "" || title == "" || content == "" {
		p.setFlash(c, "כל השדות הם חובה.", "danger")
		c.Redirect(http.StatusFound, fmt.Sprintf("/kb/edit/%d", id))
		return
	}

	if err := p.db.UpdateKBEntry(id, category, title, content, active); err != nil {
		log.Log.Errorf("failed to update kb entry %d: %v", id, err)
		p.setFlash(c, "שגיאה בעדכון הרשומה.", "danger")
		c.Redirect(http.StatusFound, "/kb")
		return
	}
	p.rag.MarkStale()
	p.setFlash(c, "הרשומה עודכנה. בנו את האינדקס מחדש כדי להחיל את השינוי.", "success")
	c.Redirect(http.StatusFound, "/kb")
}

func (p *Panel) handleKBDelete(c *gin.Context) {
	id := paramID(c, "id")
	if err := p.db.DeleteKBEntry(id); err != nil {
		log.Log.Errorf("failed to delete kb entry %d: %v", id, err)
		p.setFlash(c, "שגיאה במחיקת הרשומה.", "danger")
	} else {
		p.rag.MarkStale()
		p.setFlash(c, "הרשומה נמחקה.", "success")
	}
	c.Redirect(http.StatusFound, "/kb")
}

// handleKBRebuild rebuilds the vector index in the background so the
// request returns immediately.
func (p *Panel) handleKBRebuild(c *gin.Context) {
	p.dispatcher.Dispatch(func(ctx context.Context) {
		if err := p.rag.Rebuild(ctx); err != nil {
			log.Log.Errorf("failed to rebuild rag index: %v", err)
		}
	})
	p.setFlash(c, "בניית אינדקס RAG החלה ברקע.", "success")
	c.Redirect(http.StatusFound, "/kb")
}
