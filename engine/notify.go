package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

// notifyAgentRequest records the request and pings the owner chat.
// Notification failures never fail the request itself.
func (e *Engine) notifyAgentRequest(ctx context.Context, u chat.Update, reason string) int64 {
	requestID, err := e.db.CreateAgentRequest(u.UserID, displayName(u), u.Handle, reason)
	if err != nil {
		log.Log.Errorf("[Engine] failed to create agent request for %d: %v", u.UserID, err)
		return 0
	}

	if e.ownerID != 0 {
		handle := platformHandle(u)
		if handle == "" {
			handle = "(ללא שם משתמש)"
		}
		notification := fmt.Sprintf(
			"🔔 בקשת נציג #%d\n\nלקוח: %s\nיוזר: %s\nזמן: עכשיו\n\n%s",
			requestID, displayName(u), handle, reason)
		if err := e.sender.Send(ctx, e.ownerID, chat.Text(notification)); err != nil {
			log.Log.Errorf("[Engine] failed to notify owner of agent request #%d: %v", requestID, err)
		}
	}
	return requestID
}

// notifyNewAppointment tells the owner a new appointment awaits
// confirmation.
func (e *Engine) notifyNewAppointment(ctx context.Context, u chat.Update, apptID int64, st *bookingState) {
	if e.ownerID == 0 {
		return
	}
	handle := platformHandle(u)
	if handle == "" {
		handle = "(ללא שם משתמש)"
	}
	notification := fmt.Sprintf(
		"📅 בקשת תור חדשה לאישור #%d\n\nלקוח: %s\nיוזר: %s\nשירות: %s\nתאריך: %s\nשעה: %s\n",
		apptID, displayName(u), handle, st.service, st.date, st.timeSlot)
	if err := e.sender.Send(ctx, e.ownerID, chat.Text(notification)); err != nil {
		log.Log.Errorf("[Engine] failed to notify owner of appointment #%d: %v", apptID, err)
	}
}

// AppointmentStatusChanged pushes a status notification to the customer
// after the owner confirms or cancels an appointment from the admin
// panel. Confirmation also completes a pending referral and offers the
// customer their own code.
func (e *Engine) AppointmentStatusChanged(ctx context.Context, appt *model.Appointment, ownerMessage string) {
	if appt == nil {
		return
	}

	text, ok := appointmentStatusMessage(e.cfg.Business.Name, appt, ownerMessage)
	if ok {
		if err := e.sender.Send(ctx, appt.UserID, chat.Text(text)); err != nil {
			log.Log.Errorf("[Engine] failed to notify user %d about appointment #%d: %v",
				appt.UserID, appt.ID, err)
		} else {
			log.Log.Infof("[Engine] sent %s notification for appointment #%d", appt.Status, appt.ID)
		}
	}

	if appt.Status != model.AppointmentConfirmed {
		return
	}

	// A confirmed first appointment completes the referral chain and
	// mints the dual credits.
	completed, err := e.referral.Complete(appt.UserID)
	if err != nil {
		log.Log.Errorf("[Engine] referral completion failed for %d: %v", appt.UserID, err)
	}
	if completed {
		log.Log.Infof("[Engine] referral completed for user %d (appointment #%d)", appt.UserID, appt.ID)
	}

	e.referral.TrySendCode(appt.UserID, func(text string) error {
		return e.sender.Send(ctx, appt.UserID, chat.Text(text))
	})
}

// appointmentStatusMessage builds the customer-facing status update.
// Only confirmed and cancelled have templates; pending changes are
// silent.
func appointmentStatusMessage(businessName string, appt *model.Appointment, ownerMessage string) (string, bool) {
	var lines []string
	switch appt.Status {
	case model.AppointmentConfirmed:
		lines = []string{fmt.Sprintf("התור שלך ב%s אושר! ✅", businessName)}
	case model.AppointmentCancelled:
		lines = []string{fmt.Sprintf("התור שלך ב%s בוטל ❌", businessName)}
	default:
		return "", false
	}

	lines = append(lines,
		"",
		fmt.Sprintf("📋 שירות: %s", appt.Service),
		fmt.Sprintf("📅 תאריך: %s", appt.PreferredDate),
		fmt.Sprintf("🕐 שעה: %s", appt.PreferredTime),
	)
	if msg := strings.TrimSpace(ownerMessage); msg != "" {
		lines = append(lines, "", "💬 "+msg)
	}
	if appt.Status == model.AppointmentConfirmed {
		lines = append(lines, "", "נתראה! 😊")
	} else {
		lines = append(lines, "", "לקביעת תור חדש, שלחו /book")
	}
	return strings.Join(lines, "\n"), true
}
