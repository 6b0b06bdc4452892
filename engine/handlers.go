package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/referral"
)

const helpText = "🤖 *איך להשתמש בבוט:*\n\n" +
	"• פשוט כתבו כל שאלה ואעשה כמיטב יכולתי לענות!\n" +
	"• לחצו על *📋 מחירון* כדי לראות את השירותים והמחירים\n" +
	"• לחצו על *📅 בקשת תור* כדי לבקש תור\n" +
	"• לחצו על *📍 שליחת מיקום* כדי לקבל את הכתובת והמפה שלנו\n" +
	"• לחצו על *📇 שמור איש קשר* כדי לשמור אותנו באנשי הקשר\n" +
	"• לחצו על *👤 דברו עם נציג* כדי לדבר עם נציג אמיתי\n\n" +
	"אפשר גם לשאול שאלות כמו:\n" +
	"  _\"מה שעות הפתיחה שלכם?\"_\n" +
	"  _\"האם אתם מציעים צביעת שיער?\"_\n" +
	"  _\"מה מדיניות הביטולים שלכם?\"_"

const agentAcceptedText = "👤 הודעתי לצוות שלנו שאתם מעוניינים לדבר עם מישהו.\n\n" +
	"נציג אנושי יחזור אליכם בקרוב. " +
	"בינתיים, אתם מוזמנים לשאול אותי כל שאלה נוספת!"

const unsubscribedText = "הוסרתם מרשימת העדכונים שלנו. " +
	"אפשר לחזור בכל עת עם הפקודה /subscribe. להתראות! 👋"

const subscribedText = "נרשמתם לעדכונים שלנו! 🎉 נשלח לכם מדי פעם חדשות ומבצעים."

// handleCommand routes slash commands. Unknown commands are dropped
// silently.
func (e *Engine) handleCommand(ctx context.Context, u chat.Update) {
	fields := strings.Fields(u.Text)
	if len(fields) == 0 {
		return
	}
	// Strip the @botname suffix of commands sent in a disambiguated form.
	cmd := fields[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/start":
		if e.guarded(ctx, u, false) {
			return
		}
		var payload string
		if len(fields) > 1 {
			payload = fields[1]
		}
		e.startCommand(ctx, u, payload)

	case "/help":
		if e.guarded(ctx, u, false) {
			return
		}
		e.send(ctx, u.UserID, chat.Outgoing{Text: helpText, Keyboard: MainKeyboard()})

	case "/stop":
		if e.guarded(ctx, u, false) {
			return
		}
		if err := e.db.SetSubscribed(u.UserID, false); err != nil {
			log.Log.Errorf("[Engine] failed to unsubscribe %d: %v", u.UserID, err)
		}
		e.send(ctx, u.UserID, chat.Outgoing{Text: unsubscribedText, Keyboard: MainKeyboard()})

	case "/subscribe":
		if e.guarded(ctx, u, false) {
			return
		}
		if err := e.db.EnsureSubscriber(u.UserID, displayName(u)); err != nil {
			log.Log.Errorf("[Engine] failed to subscribe %d: %v", u.UserID, err)
		}
		if err := e.db.SetSubscribed(u.UserID, true); err != nil {
			log.Log.Errorf("[Engine] failed to resubscribe %d: %v", u.UserID, err)
		}
		e.send(ctx, u.UserID, chat.Outgoing{Text: subscribedText, Keyboard: MainKeyboard()})

	case "/cancel":
		if e.guarded(ctx, u, false) {
			return
		}
		e.cancelBooking(ctx, u)

	case "/book":
		if e.guarded(ctx, u, false) {
			return
		}
		e.startBooking(ctx, u)

	default:
		log.Log.Debugf("[Engine] unknown command %q from %d", cmd, u.UserID)
	}
}

// startCommand sends the welcome message and registers a referral when
// the deep-link payload carries a code.
func (e *Engine) startCommand(ctx context.Context, u chat.Update, payload string) {
	if err := e.db.EnsureSubscriber(u.UserID, displayName(u)); err != nil {
		log.Log.Errorf("[Engine] failed to register subscriber %d: %v", u.UserID, err)
	}

	referred := false
	if referral.IsCode(payload) {
		ok, err := e.referral.Register(payload, u.UserID)
		if err != nil {
			log.Log.Errorf("[Engine] referral registration failed for %d: %v", u.UserID, err)
		}
		if ok {
			referred = true
			log.Log.Infof("[Engine] referral registered: user %d via code %s", u.UserID, payload)
		}
	}

	welcome := fmt.Sprintf(
		"👋 ברוכים הבאים ל-*%s*!\n\n"+
			"אני העוזר הווירטואלי שלכם. אני יכול לעזור לכם עם:\n"+
			"• מידע על השירותים והמחירים שלנו\n"+
			"• בקשת תורים\n"+
			"• מענה על שאלות\n"+
			"• חיבור לנציג אנושי\n\n"+
			"פשוט כתבו את השאלה שלכם או השתמשו בכפתורים למטה! 👇",
		e.cfg.Business.Name)
	if referred {
		welcome += "\n\n🎁 *הגעתם דרך הפניה!* " +
			"לאחר שתקבעו ותשלימו את התור הראשון שלכם — " +
			"גם אתם וגם החבר/ה שהפנה אתכם תקבלו *10% הנחה לחודשיים!*"
	}

	e.send(ctx, u.UserID, chat.Outgoing{Text: welcome, Keyboard: MainKeyboard()})

	e.saveUser(u, "/start")
	e.saveAssistant(u, "[Welcome message sent]", nil)
}

// handleButton routes a main-menu button press. The caller has already
// run the guard chain.
func (e *Engine) handleButton(ctx context.Context, u chat.Update) {
	switch u.Text {
	case ButtonPriceList:
		e.priceListButton(ctx, u)
	case ButtonLocation:
		e.locationButton(ctx, u)
	case ButtonSaveContact:
		e.saveContactButton(ctx, u)
	case ButtonAgent:
		e.agentButton(ctx, u)
	case ButtonBooking:
		e.startBooking(ctx, u)
	}
}

// priceListButton answers with the full price list from the knowledge
// base. The interim message covers the retrieval + LLM latency.
func (e *Engine) priceListButton(ctx context.Context, u chat.Update) {
	e.send(ctx, u.UserID, chat.Text("📋 תנו לי רגע לחפש את המחירון שלנו..."))

	e.saveUser(u, "📋 מחירון")

	ans := e.answer(ctx, "הצג לי את המחירון המלא עם כל השירותים והמחירים", nil, "")
	if e.shouldHandoff(ans) {
		e.handoff(ctx, u, "הלקוח ביקש מחירון, אך אין מידע זמין במאגר.")
		return
	}

	e.saveAssistant(u, ans.Raw, ans.Sources)
	e.send(ctx, u.UserID, chat.Outgoing{Text: ans.Text, Keyboard: MainKeyboard()})
}

func (e *Engine) locationButton(ctx context.Context, u chat.Update) {
	e.saveUser(u, "📍 מיקום")

	ans := e.answer(ctx, "מה הכתובת והמיקום של העסק? איך מגיעים?", nil, "")
	if e.shouldHandoff(ans) {
		e.handoff(ctx, u, "הלקוח ביקש לקבל מיקום/כתובת, אך אין מידע זמין במאגר.")
		return
	}

	e.saveAssistant(u, ans.Raw, ans.Sources)
	e.send(ctx, u.UserID, chat.Outgoing{Text: ans.Text, Keyboard: MainKeyboard()})
}

// saveContactButton sends the business card as a .vcf attachment.
func (e *Engine) saveContactButton(ctx context.Context, u chat.Update) {
	card, err := e.vcardText()
	if err != nil {
		log.Log.Errorf("[Engine] failed to build contact card: %v", err)
		e.send(ctx, u.UserID, chat.Outgoing{Text: errorText, Keyboard: MainKeyboard()})
		return
	}

	e.saveUser(u, "📇 שמירת איש קשר")

	e.send(ctx, u.UserID, chat.Outgoing{
		Text:     "הנה כרטיס הביקור שלנו! לחצו עליו ושמרו באנשי הקשר. 👇",
		Keyboard: MainKeyboard(),
		Document: &chat.Document{
			Name: e.cfg.Business.Name + ".vcf",
			MIME: "text/vcard",
			Data: []byte(card),
		},
	})

	e.saveAssistant(u, "[כרטיס ביקור נשלח]", nil)
}

// agentButton files an agent request. During vacation the customer gets
// the vacation message instead; nobody is around to pick up.
func (e *Engine) agentButton(ctx context.Context, u chat.Update) {
	if e.vacation.Active() {
		reply := e.vacation.AgentMessage()
		e.saveUser(u, "👤 שיחה עם נציג")
		e.saveAssistant(u, reply, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: reply, Keyboard: MainKeyboard()})
		return
	}

	e.notifyAgentRequest(ctx, u, "הלקוח מבקש לדבר עם נציג אנושי.")

	e.saveUser(u, "👤 שיחה עם נציג")
	e.saveAssistant(u, agentAcceptedText, nil)
	e.send(ctx, u.UserID, chat.Outgoing{Text: agentAcceptedText, Keyboard: MainKeyboard()})
}
