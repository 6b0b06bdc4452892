package admin

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

func (p *Panel) handleBusinessHoursPage(c *gin.Context) {
	weekly, err := p.db.BusinessHours()
	if err != nil {
		log.Log.Errorf("failed to load business hours: %v", err)
	}
	byDay := map[int]model.DayHours{}
	for _, h := range weekly {
		byDay[h.Day] = h
	}

	specials, err := p.db.ListSpecialDays(time.Now().Format("2006-01-02"))
	if err != nil {
		log.Log.Errorf("failed to load special days: %v", err)
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">שעות פעילות</h3>`)

	b.WriteString(cardStart("לוח שבועי", "clock"))
	fmt.Fprintf(&b, `<form method="post" action="/business-hours">%s`, csrfField(c))
	b.WriteString(tableStart("יום", "סגור", "פתיחה", "סגירה"))
	for day := 0; day < 7; day++ {
		h := byDay[day]
		checked := ""
		if h.Closed {
			checked = " checked"
		}
		fmt.Fprintf(&b, `<tr>
<td>%s</td>
<td><input type="checkbox" class="form-check-input" name="closed_%d" value="1"%s></td>
<td><input type="time" class="form-control" name="open_%d" value="%s"></td>
<td><input type="time" class="form-control" name="close_%d" value="%s"></td>
</tr>`, esc(hours.DayName(day)), day, checked, day, esc(h.Open), day, esc(h.Close))
	}
	b.WriteString(tableEnd())
	b.WriteString(`<button type="submit" class="btn btn-primary">שמירת הלוח</button></form>`)
	b.WriteString(cardEnd())

	b.WriteString(cardStart("ימים מיוחדים", "calendar-event"))
	b.WriteString(`<p class="text-muted small">חגים, אירועים ושינויים חד-פעמיים. תאריך קיים נדרס על ידי שמירה חוזרת.</p>`)
	fmt.Fprintf(&b, `<form method="post" action="/business-hours/special-days/add" class="row g-2 mb-3">%s
<div class="col-md-3"><input type="date" class="form-control" name="date" required></div>
<div class="col-md-3"><input type="text" class="form-control" name="name" placeholder="שם (למשל: ערב חג)" required></div>
<div class="col-md-2"><input type="time" class="form-control" name="open" placeholder="פתיחה"></div>
<div class="col-md-2"><input type="time" class="form-control" name="close" placeholder="סגירה"></div>
<div class="col-md-2"><button type="submit" class="btn btn-primary w-100">הוספה</button></div>
<div class="col-12 form-text">השאירו את שעות הפתיחה ריקות כדי לסמן יום סגור.</div>
</form>`, csrfField(c))

	if len(specials) > 0 {
		b.WriteString(tableStart("תאריך", "שם", "שעות", ""))
		for _, d := range specials {
			hoursText := "סגור"
			if !d.Closed && d.Open != "" {
				hoursText = d.Open + "-" + d.Close
			}
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				esc(d.Date), esc(d.Name), esc(hoursText),
				postButton(c, fmt.Sprintf("/business-hours/special-days/%d/delete", d.ID), "מחיקה", "btn-outline-danger", nil))
		}
		b.WriteString(tableEnd())
	}
	b.WriteString(cardEnd())

	p.renderPage(c, "שעות פעילות", "/business-hours", b.String())
}

// handleBusinessHoursSave reads the closed_N/open_N/close_N form
// fields for all seven days.
func (p *Panel) handleBusinessHoursSave(c *gin.Context) {
	for day := 0; day < 7; day++ {
		h := model.DayHours{
			Day:    day,
			Closed: c.PostForm(fmt.Sprintf("closed_%d", day)) == "1",
		}
		if !h.Closed {
			h.Open = c.PostForm(fmt.Sprintf("open_%d", day))
			h.Close = c.PostForm(fmt.Sprintf("close_%d", day))
			if h.Open == "" || h.Close == "" {
				h.Closed = true
				h.Open, h.Close = "", ""
			}
		}
		if err := p.db.SetDayHours(h); err != nil {
			log.Log.Errorf("failed to save hours for day %d: %v", day, err)
			p.setFlash(c, "שגיאה בשמירת שעות הפעילות.", "danger")
			c.Redirect(http.StatusFound, "/business-hours")
			return
		}
	}
	p.setFlash(c, "שעות הפעילות נשמרו.", "success")
	c.Redirect(http.StatusFound, "/business-hours")
}

func (p *Panel) handleSpecialDayAdd(c *gin.Context) {
	date := strings.TrimSpace(c.PostForm("date"))
	name := strings.TrimSpace(c.PostForm("name"))
	open := strings.TrimSpace(c.PostForm("open"))
	closeTime := strings.TrimSpace(c.PostForm("close"))

	if date == "" || name == "" {
		p.setFlash(c, "תאריך ושם הם שדות חובה.", "danger")
		c.Redirect(http.StatusFound, "/business-hours")
		return
	}

	day := model.SpecialDay{
		Date:   date,
		Name:   name,
		Open:   open,
		Close:  closeTime,
		Closed: open == "" || closeTime == "",
		Notes:  strings.TrimSpace(c.PostForm("notes")),
	}
	if day.Closed {
		day.Open, day.Close = "", ""
	}

	if _, err := p.db.CreateSpecialDay(day); err != nil {
		log.Log.Errorf("failed to save special day: %v", err)
		p.setFlash(c, "שגיאה בשמירת היום המיוחד.", "danger")
	} else {
		p.setFlash(c, "היום המיוחד נשמר.", "success")
	}
	c.Redirect(http.StatusFound, "/business-hours")
}

func (p *Panel) handleSpecialDayDelete(c *gin.Context) {
	id := paramID(c, "id")
	if err := p.db.DeleteSpecialDay(id); err != nil {
		log.Log.Errorf("failed to delete special day %d: %v", id, err)
		p.setFlash(c, "שגיאה במחיקת היום המיוחד.", "danger")
	} else {
		p.setFlash(c, "היום המיוחד נמחק.", "success")
	}
	c.Redirect(http.StatusFound, "/business-hours")
}

func (p *Panel) handleVacationPage(c *gin.Context) {
	v, err := p.vacation.Settings()
	if err != nil {
		log.Log.Errorf("failed to load vacation settings: %v", err)
	}

	checked := ""
	if v.Active {
		checked = " checked"
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">מצב חופשה</h3>`)
	if v.Active {
		b.WriteString(`<div class="alert alert-warning"><i class="bi bi-airplane me-2"></i>מצב חופשה פעיל. בקשות תור ונציג נענות בהודעת החופשה.</div>`)
	}

	b.WriteString(cardStart("הגדרות", "airplane"))
	fmt.Fprintf(&b, `<form method="post" action="/vacation-mode">%s
<div class="form-check form-switch mb-3">
<input class="form-check-input" type="checkbox" name="is_active" value="1"%s id="vac">
<label class="form-check-label" for="vac">מצב חופשה פעיל</label>
</div>
<div class="mb-3"><label class="form-label">תאריך חזרה</label>
<input type="date" class="form-control" name="vacation_end_date" value="%s"></div>
<div class="mb-3"><label class="form-label">הודעה מותאמת אישית (רשות)</label>
<textarea class="form-control" name="vacation_message" rows="3" placeholder="ריק = הודעת ברירת המחדל">%s</textarea></div>
<button type="submit" class="btn btn-primary">שמירה</button>
</form>`, csrfField(c), checked, esc(v.EndDate), esc(v.CustomMessage))
	b.WriteString(cardEnd())

	b.WriteString(cardStart("תצוגה מקדימה", "eye"))
	fmt.Fprintf(&b, `<p class="mb-1 text-muted small">בקשת תור:</p><div class="border rounded p-2 mb-3" style="white-space: pre-line;">%s</div>
<p class="mb-1 text-muted small">בקשת נציג:</p><div class="border rounded p-2" style="white-space: pre-line;">%s</div>`,
		esc(p.vacation.BookingMessage()), esc(p.vacation.AgentMessage()))
	b.WriteString(cardEnd())

	p.renderPage(c, "מצב חופשה", "/vacation-mode", b.String())
}

func (p *Panel) handleVacationSave(c *gin.Context) {
	v := model.Vacation{
		Active:        c.PostForm("is_active") == "1",
		EndDate:       strings.TrimSpace(c.PostForm("vacation_end_date")),
		CustomMessage: strings.TrimSpace(c.PostForm("vacation_message")),
	}
	if err := p.vacation.Set(v); err != nil {
		log.Log.Errorf("failed to save vacation mode: %v", err)
		p.setFlash(c, "שגיאה בשמירת מצב החופשה.", "danger")
	} else if v.Active {
		p.setFlash(c, "מצב חופשה הופעל.", "success")
	} else {
		p.setFlash(c, "מצב חופשה כובה.", "success")
	}
	c.Redirect(http.StatusFound, "/vacation-mode")
}

var toneLabels = []struct {
	Tone  model.Tone
	Label string
	Desc  string
}{
	{model.ToneFriendly, "ידידותי", "חם ונגיש, עם אימוג'ים"},
	{model.ToneFormal, "רשמי", "מקצועי ומנומס"},
	{model.ToneSales, "מכירתי", "נלהב, מדגיש הצעות ומבצעים"},
	{model.ToneLuxury, "יוקרתי", "מעודן ואלגנטי"},
}

func (p *Panel) handlePersonalityPage(c *gin.Context) {
	settings, err := p.db.BotSettings()
	if err != nil {
		log.Log.Errorf("failed to load bot settings: %v", err)
		settings = model.DefaultBotSettings()
	}

	var b strings.Builder
	b.WriteString(`<h3 class="mb-4">אישיות הבוט</h3>`)
	b.WriteString(cardStart("טון דיבור", "robot"))
	fmt.Fprintf(&b, `<form method="post" action="/bot-personality">%s<div class="row mb-3">`, csrfField(c))
	for _, t := range toneLabels {
		checked := ""
		if t.Tone == settings.Tone {
			checked = " checked"
		}
		fmt.Fprintf(&b, `<div class="col-md-6 mb-2"><label class="border rounded p-3 d-block">
<input type="radio" class="form-check-input me-2" name="tone" value="%s"%s>
<strong>%s</strong><br><span class="text-muted small">%s</span>
</label></div>`, t.Tone, checked, esc(t.Label), esc(t.Desc))
	}
	followUp := ""
	if settings.FollowUpEnabled {
		followUp = " checked"
	}
	fmt.Fprintf(&b, `</div>
<div class="form-check form-switch mb-3">
<input class="form-check-input" type="checkbox" name="follow_up_enabled" value="1"%s id="fu">
<label class="form-check-label" for="fu">הצעת שאלות המשך אחרי תשובות</label>
</div>
<div class="mb-3"><label class="form-label">הנחיות מותאמות אישית (שורה להנחיה)</label>
<textarea class="form-control" name="custom_phrases" rows="4" placeholder="למשל: הזכירי תמיד את מבצע החודש">%s</textarea></div>
<button type="submit" class="btn btn-primary">שמירה</button>
</form>`, followUp, esc(settings.CustomPhrases))
	b.WriteString(cardEnd())

	p.renderPage(c, "אישיות הבוט", "/bot-personality", b.String())
}

func (p *Panel) handlePersonalitySave(c *gin.Context) {
	tone := model.Tone(c.PostForm("tone"))
	if !tone.Valid() {
		p.setFlash(c, "טון לא מוכר.", "danger")
		c.Redirect(http.StatusFound, "/bot-personality")
		return
	}

	settings := model.BotSettings{
		Tone:            tone,
		CustomPhrases:   strings.TrimSpace(c.PostForm("custom_phrases")),
		FollowUpEnabled: c.PostForm("follow_up_enabled") == "1",
	}
	if err := p.db.SetBotSettings(settings); err != nil {
		log.Log.Errorf("failed to save bot settings: %v", err)
		p.setFlash(c, "שגיאה בשמירת ההגדרות.", "danger")
	} else {
		p.setFlash(c, "אישיות הבוט עודכנה.", "success")
	}
	c.Redirect(http.StatusFound, "/bot-personality")
}
