package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

// Booking flow prompts. Service, date and time are captured verbatim as
// free text; the owner interprets them when confirming.
const (
	bookingAskDateText = "📆 מעולה! באיזה *תאריך* תעדיפו?\n" +
		"(לדוגמה, 'יום שני', '15 במרץ', 'מחר')\n\n" +
		"הקלידו /cancel כדי לחזור."

	bookingAskTimeText = "🕐 איזו *שעה* מתאימה לכם?\n" +
		"(לדוגמה, '10:00', 'אחר הצהריים', '14:00')\n\n" +
		"הקלידו /cancel כדי לחזור."

	bookingDeclinedText = "❌ בקשת התור בוטלה. אין בעיה!\n" +
		"אתם מוזמנים לבקש תור חדש בכל עת."

	bookingCancelledText = "תהליך בקשת התור בוטל. איך עוד אפשר לעזור לכם?"
)

type bookingStage int

const (
	stageService bookingStage = iota + 1
	stageDate
	stageTime
	stageConfirm
)

type bookingState struct {
	stage    bookingStage
	service  string
	date     string
	timeSlot string
}

// confirmWords are the answers accepted as a booking confirmation;
// anything else declines.
var confirmWords = map[string]bool{
	"yes": true, "y": true, "confirm": true, "כן": true, "אישור": true,
}

func (e *Engine) bookingFor(userID int64) *bookingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookings[userID]
}

func (e *Engine) setBooking(userID int64, st *bookingState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st == nil {
		delete(e.bookings, userID)
	} else {
		e.bookings[userID] = st
	}
}

// startBooking enters the flow. The service list comes from the
// knowledge base; when the KB has nothing to offer the flow never
// starts and the customer is handed off instead.
func (e *Engine) startBooking(ctx context.Context, u chat.Update) {
	if e.vacation.Active() {
		reply := e.vacation.BookingMessage()
		e.saveUser(u, ButtonBooking)
		e.saveAssistant(u, reply, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: reply, Keyboard: MainKeyboard()})
		return
	}

	e.saveUser(u, ButtonBooking)

	ans := e.answer(ctx, "אילו שירותים אתם מציעים? פרטו בקצרה.", nil, "")
	if e.shouldHandoff(ans) {
		e.handoff(ctx, u, "הלקוח ביקש לקבוע תור, אך אין מידע זמין על השירותים במאגר.")
		return
	}

	e.setBooking(u.UserID, &bookingState{stage: stageService})

	text := fmt.Sprintf(
		"📅 *בקשת תור*\n\n%s\n\nאנא כתבו את *השירות* שתרצו להזמין (או הקלידו /cancel כדי לחזור):",
		ans.Text)
	e.send(ctx, u.UserID, chat.Text(text))
}

// handleBookingStep advances the state machine by one user message. A
// menu-button press anywhere in the flow cancels it and routes the
// button instead.
func (e *Engine) handleBookingStep(ctx context.Context, u chat.Update, st *bookingState) {
	if IsMenuButton(u.Text) {
		e.setBooking(u.UserID, nil)
		e.handleButton(ctx, u)
		return
	}

	switch st.stage {
	case stageService:
		st.service = u.Text
		st.stage = stageDate
		e.setBooking(u.UserID, st)
		e.send(ctx, u.UserID, chat.Text(bookingAskDateText))

	case stageDate:
		st.date = u.Text
		st.stage = stageTime
		e.setBooking(u.UserID, st)
		e.send(ctx, u.UserID, chat.Text(bookingAskTimeText))

	case stageTime:
		st.timeSlot = u.Text
		st.stage = stageConfirm
		e.setBooking(u.UserID, st)
		e.send(ctx, u.UserID, chat.Text(fmt.Sprintf(
			"📋 *סיכום בקשת התור:*\n\n• שירות: %s\n• תאריך: %s\n• שעה: %s\n\nאנא אשרו על ידי כתיבת *כן* או *לא*:",
			st.service, st.date, st.timeSlot)))

	case stageConfirm:
		e.setBooking(u.UserID, nil)
		if confirmWords[strings.ToLower(strings.TrimSpace(u.Text))] {
			e.finishBooking(ctx, u, st)
		} else {
			e.send(ctx, u.UserID, chat.Outgoing{Text: bookingDeclinedText, Keyboard: MainKeyboard()})
		}
	}
}

// finishBooking persists the appointment, notifies the owner and
// confirms receipt to the customer. The referral code is sent later,
// when the owner confirms the appointment.
func (e *Engine) finishBooking(ctx context.Context, u chat.Update, st *bookingState) {
	apptID, err := e.db.CreateAppointment(model.Appointment{
		UserID:         u.UserID,
		Username:       displayName(u),
		PlatformHandle: u.Handle,
		Service:        st.service,
		PreferredDate:  st.date,
		PreferredTime:  st.timeSlot,
	})
	if err != nil {
		log.Log.Errorf("[Engine] failed to save appointment for %d: %v", u.UserID, err)
		e.send(ctx, u.UserID, chat.Outgoing{Text: errorText, Keyboard: MainKeyboard()})
		return
	}

	e.notifyNewAppointment(ctx, u, apptID, st)

	e.saveAssistant(u, fmt.Sprintf("בקשת תור: %s בתאריך %s בשעה %s", st.service, st.date, st.timeSlot), nil)

	e.send(ctx, u.UserID, chat.Outgoing{
		Text: fmt.Sprintf(
			"📋 בקשת התור התקבלה!\n\n• שירות: %s\n• תאריך: %s\n• שעה: %s\n\n"+
				"העברנו את הפרטים לבית העסק. ניצור איתכם קשר בהקדם לאישור סופי של השעה.",
			st.service, st.date, st.timeSlot),
		Keyboard: MainKeyboard(),
	})
}

// cancelBooking ends the flow from /cancel.
func (e *Engine) cancelBooking(ctx context.Context, u chat.Update) {
	e.setBooking(u.UserID, nil)
	e.send(ctx, u.UserID, chat.Outgoing{Text: bookingCancelledText, Keyboard: MainKeyboard()})
}
