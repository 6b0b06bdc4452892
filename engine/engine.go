// Package engine is the conversation orchestrator: it receives inbound
// chat updates, runs the guard chain (rate limit, live-chat takeover,
// vacation), classifies intent, drives the booking flow and decides
// between answering and handing off to a human.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/intent"
	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/llmutils"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/memory"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/ratelimit"
	"github.com/bizbot-il/bizbot/referral"
	"github.com/bizbot-il/bizbot/store"
	"github.com/bizbot-il/bizbot/vacation"
)

// Menu button labels. These double as routing keys: a text message that
// equals one of them is a button press, not a question.
const (
	ButtonPriceList   = "📋 מחירון"
	ButtonBooking     = "📅 בקשת תור"
	ButtonLocation    = "📍 שליחת מיקום"
	ButtonSaveContact = "📇 שמור איש קשר"
	ButtonAgent       = "👤 דברו עם נציג"
)

const errorText = "מצטערים, משהו השתבש. אנא נסו שוב או לחצו על " +
	"'👤 דברו עם נציג' כדי לדבר עם נציג אנושי."

const bookingGuidanceText = "אשמח לעזור לכם לבקש תור! 📅\n\n" +
	"לחצו על הכפתור *📅 בקשת תור* למטה כדי להתחיל."

const cancelConfirmText = "האם אתם בטוחים שתרצו לבטל את התור?"

// Deps are the collaborators the engine composes. Everything is
// required except Summarizer, which may be nil when no LLM is
// configured.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	RAG        *rag.Manager
	Pipeline   *llmutils.Pipeline
	Hours      *hours.Resolver
	Vacation   *vacation.Service
	LiveChat   *livechat.Service
	Referral   *referral.Service
	Summarizer *memory.Summarizer
	Limiter    *ratelimit.Limiter
	Sender     chat.Sender
}

// Engine processes one inbound update at a time per user. Per-user
// state (booking progress, last follow-up suggestions) is in-memory
// only and resets on restart.
type Engine struct {
	cfg        *config.Config
	db         *store.Store
	rag        *rag.Manager
	pipeline   *llmutils.Pipeline
	hours      *hours.Resolver
	vacation   *vacation.Service
	livechat   *livechat.Service
	referral   *referral.Service
	summarizer *memory.Summarizer
	limiter    *ratelimit.Limiter
	sender     chat.Sender

	ownerID int64

	mu        sync.Mutex
	bookings  map[int64]*bookingState
	followUps map[int64][]string

	// background runs fire-and-forget tasks; tests replace it with an
	// inline runner.
	background func(fn func())
}

func New(d Deps) *Engine {
	var ownerID int64
	if d.Config.Chat.OwnerChatID != "" {
		id, err := strconv.ParseInt(d.Config.Chat.OwnerChatID, 10, 64)
		if err != nil {
			log.Log.Warnf("[Engine] invalid owner chat id %q, owner notifications disabled", d.Config.Chat.OwnerChatID)
		} else {
			ownerID = id
		}
	}
	return &Engine{
		cfg:        d.Config,
		db:         d.Store,
		rag:        d.RAG,
		pipeline:   d.Pipeline,
		hours:      d.Hours,
		vacation:   d.Vacation,
		livechat:   d.LiveChat,
		referral:   d.Referral,
		summarizer: d.Summarizer,
		limiter:    d.Limiter,
		sender:     d.Sender,
		ownerID:    ownerID,
		bookings:   make(map[int64]*bookingState),
		followUps:  make(map[int64][]string),
		background: func(fn func()) { go fn() },
	}
}

// MainKeyboard is the persistent reply keyboard attached to most
// replies.
func MainKeyboard() [][]string {
	return [][]string{
		{ButtonPriceList, ButtonBooking},
		{ButtonLocation, ButtonSaveContact},
		{ButtonAgent},
	}
}

// HandleUpdate dispatches one inbound update. It never returns an
// error: every failure path ends in either a logged error or a generic
// apology to the customer.
func (e *Engine) HandleUpdate(ctx context.Context, u chat.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Log.Errorf("[Engine] panic handling update from %d: %v", u.UserID, r)
			e.send(ctx, u.UserID, chat.Outgoing{Text: errorText, Keyboard: MainKeyboard()})
		}
	}()

	switch u.Kind {
	case chat.KindCallback:
		e.handleCallback(ctx, u)
	case chat.KindCommand:
		e.handleCommand(ctx, u)
	default:
		e.handleMessage(ctx, u)
	}
}

// guarded runs the rate-limit and live-chat guards. It returns true
// when the update was consumed: either the user is over a limit, or a
// human agent owns the conversation and the bot must stay silent (the
// inbound text is still persisted so the agent sees it).
func (e *Engine) guarded(ctx context.Context, u chat.Update, skipRateLimit bool) bool {
	if e.livechat.Active(u.UserID) {
		if strings.TrimSpace(u.Text) != "" {
			e.saveUser(u, u.Text)
		}
		return true
	}
	if !skipRateLimit {
		if v := e.limiter.Check(u.UserID); v.Limited {
			e.send(ctx, u.UserID, chat.Outgoing{Text: v.Message, Keyboard: MainKeyboard()})
			return true
		}
		e.limiter.Record(u.UserID)
	}
	return false
}

// handleMessage routes free text and menu-button presses.
func (e *Engine) handleMessage(ctx context.Context, u chat.Update) {
	if e.guarded(ctx, u, false) {
		return
	}

	// An active booking owns the conversation until it finishes, is
	// cancelled, or a menu button interrupts it.
	if st := e.bookingFor(u.UserID); st != nil {
		e.handleBookingStep(ctx, u, st)
		return
	}

	if IsMenuButton(u.Text) {
		e.handleButton(ctx, u)
		return
	}

	e.handleFreeText(ctx, u)
}

// handleFreeText classifies the message and routes it. Only PRICING
// and GENERAL reach retrieval and the LLM.
func (e *Engine) handleFreeText(ctx context.Context, u chat.Update) {
	text := u.Text

	switch in := intent.Detect(text); in {
	case intent.Greeting, intent.Farewell:
		e.saveUser(u, text)
		reply, _ := intent.DirectResponse(in)
		e.saveAssistant(u, reply, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: reply, Keyboard: MainKeyboard()})

	case intent.BusinessHours:
		e.saveUser(u, text)
		reply := e.hoursReply()
		e.saveAssistant(u, reply, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: reply, Keyboard: MainKeyboard()})

	case intent.AppointmentBooking:
		e.saveUser(u, text)
		// Guide to the button instead of starting the flow directly so
		// a typed request and a button press enter the state machine
		// the same way.
		reply := bookingGuidanceText
		if e.vacation.Active() {
			reply = e.vacation.BookingMessage()
		}
		e.saveAssistant(u, reply, nil)
		e.send(ctx, u.UserID, chat.Outgoing{Text: reply, Keyboard: MainKeyboard()})

	case intent.AppointmentCancel:
		e.saveUser(u, text)
		e.saveAssistant(u, cancelConfirmText, nil)
		e.send(ctx, u.UserID, chat.Outgoing{
			Text: cancelConfirmText,
			InlineKeyboard: [][]chat.InlineButton{{
				{Text: "כן, לבטל", Data: "cancel_appt_yes"},
				{Text: "לא, טעות", Data: "cancel_appt_no"},
			}},
		})

	case intent.Pricing:
		query := e.cfg.RAG.PricingPrefix + text
		e.ragReply(ctx, u, text, query, fmt.Sprintf("הלקוח שאל על מחירים: %s", text))
		e.checkEngagement(u)

	default:
		e.ragReply(ctx, u, text, text, fmt.Sprintf("הלקוח ביקש עזרה בנושא: %s", text))
		e.checkEngagement(u)
	}
}

// hoursReply combines the live open/closed status with the weekly
// schedule.
func (e *Engine) hoursReply() string {
	status, err := e.hours.CurrentStatus()
	if err != nil {
		log.Log.Errorf("[Engine] failed to resolve business hours: %v", err)
		return errorText
	}
	schedule, err := e.hours.WeeklyScheduleText()
	if err != nil {
		return status.Message
	}
	return status.Message + "\n\n" + schedule
}

// ragReply runs the retrieval + LLM pipeline for one question and sends
// the answer or hands off. userMessage is what gets persisted; query is
// what retrieval sees (they differ for pricing).
func (e *Engine) ragReply(ctx context.Context, u chat.Update, userMessage, query, handoffReason string) {
	if err := e.sender.Typing(ctx, u.UserID); err != nil {
		log.Log.Debugf("[Engine] typing indicator failed for %d: %v", u.UserID, err)
	}

	// History is read before the inbound message is persisted so the
	// prompt does not contain the question twice.
	history, err := e.db.RecentMessages(u.UserID, e.cfg.LLM.ContextWindow)
	if err != nil {
		log.Log.Errorf("[Engine] failed to load history for %d: %v", u.UserID, err)
	}
	e.saveUser(u, userMessage)

	var summary string
	if e.summarizer != nil {
		summary = e.summarizer.SummaryText(u.UserID)
	}

	ans := e.answer(ctx, query, history, summary)
	if e.shouldHandoff(ans) {
		if _, err := e.db.CreateUnansweredQuestion(u.UserID, displayName(u), userMessage); err != nil {
			log.Log.Errorf("[Engine] failed to log unanswered question: %v", err)
		}
		e.handoff(ctx, u, handoffReason)
	} else {
		e.saveAssistant(u, ans.Raw, ans.Sources)
		out := chat.Outgoing{Text: ans.Text, Keyboard: MainKeyboard()}
		out.InlineKeyboard = e.rememberFollowUps(u.UserID, ans.FollowUps)
		e.send(ctx, u.UserID, out)
	}

	if e.summarizer != nil {
		e.background(func() { e.summarizer.MaybeSummarize(context.Background(), u.UserID) })
	}
}

// answer runs retrieval and the LLM pipeline. An empty knowledge base
// and retrieval errors both degrade to the fallback answer, which the
// caller turns into a handoff.
func (e *Engine) answer(ctx context.Context, query string, history []model.Message, summary string) llmutils.Answer {
	hits, err := e.rag.Retrieve(ctx, query, e.cfg.RAG.TopK)
	if err != nil {
		log.Log.Errorf("[Engine] retrieval failed: %v", err)
		return llmutils.Answer{Text: llmutils.Fallback, Raw: llmutils.Fallback, Fallback: true}
	}
	if len(hits) == 0 {
		return llmutils.Answer{Text: llmutils.Fallback, Raw: llmutils.Fallback, Fallback: true}
	}

	settings, err := e.db.BotSettings()
	if err != nil {
		log.Log.Errorf("[Engine] failed to load bot settings: %v", err)
		settings = model.DefaultBotSettings()
	}

	return e.pipeline.Generate(ctx, llmutils.AnswerInput{
		Query:        query,
		RAGContext:   rag.FormatContext(hits),
		HoursContext: e.hours.LLMContext(),
		Summary:      summary,
		History:      history,
		Settings:     settings,
		Sources:      rag.Sources(hits),
		ChunksUsed:   len(hits),
	})
}

// shouldHandoff decides whether an answer means "I don't know, get a
// human". The pipeline marks ungrounded answers; the text checks catch
// models that phrase the transfer themselves.
func (e *Engine) shouldHandoff(ans llmutils.Answer) bool {
	if ans.Fallback {
		return true
	}
	t := strings.TrimSpace(ans.Text)
	if t == strings.TrimSpace(llmutils.Fallback) {
		return true
	}
	if strings.Contains(t, "תנו לי להעביר") && strings.Contains(t, "נציג אנושי") {
		return true
	}
	lower := strings.ToLower(t)
	if strings.Contains(lower, "let me transfer you") && strings.Contains(lower, "human agent") {
		return true
	}
	return false
}

// handoff records an agent request, notifies the owner and apologizes
// to the customer with the canned fallback.
func (e *Engine) handoff(ctx context.Context, u chat.Update, reason string) {
	e.notifyAgentRequest(ctx, u, reason)
	e.saveAssistant(u, llmutils.Fallback, nil)
	e.send(ctx, u.UserID, chat.Outgoing{Text: llmutils.Fallback, Keyboard: MainKeyboard()})
}

// rememberFollowUps stores the latest suggestions for the fu: callback
// and builds their inline keyboard, one suggestion per row.
func (e *Engine) rememberFollowUps(userID int64, questions []string) [][]chat.InlineButton {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(questions) == 0 {
		delete(e.followUps, userID)
		return nil
	}
	e.followUps[userID] = questions

	rows := make([][]chat.InlineButton, 0, len(questions))
	for i, q := range questions {
		rows = append(rows, []chat.InlineButton{{Text: q, Data: fmt.Sprintf("fu:%d", i)}})
	}
	return rows
}

// followUpQuestion resolves a stored suggestion by index; ok is false
// after a restart or when the suggestions were replaced.
func (e *Engine) followUpQuestion(userID int64, index int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	qs := e.followUps[userID]
	if index < 0 || index >= len(qs) {
		return "", false
	}
	return qs[index], true
}

// checkEngagement runs the referral engagement check in the
// background.
func (e *Engine) checkEngagement(u chat.Update) {
	userID := u.UserID
	e.background(func() {
		e.referral.CheckEngagement(userID, func(text string) error {
			return e.sender.Send(context.Background(), userID, chat.Text(text))
		})
	})
}

func (e *Engine) send(ctx context.Context, userID int64, msg chat.Outgoing) {
	if err := e.sender.Send(ctx, userID, msg); err != nil {
		log.Log.Errorf("[Engine] failed to send to %d: %v", userID, err)
	}
}

func (e *Engine) saveUser(u chat.Update, text string) {
	if _, err := e.db.SaveMessage(u.UserID, displayName(u), model.RoleUser, text, nil); err != nil {
		log.Log.Errorf("[Engine] failed to persist user message for %d: %v", u.UserID, err)
	}
}

func (e *Engine) saveAssistant(u chat.Update, text string, sources []string) {
	if _, err := e.db.SaveMessage(u.UserID, displayName(u), model.RoleAssistant, text, sources); err != nil {
		log.Log.Errorf("[Engine] failed to persist assistant message for %d: %v", u.UserID, err)
	}
}

// displayName picks the best available name for storage and owner
// notifications.
func displayName(u chat.Update) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Handle != "" {
		return "@" + u.Handle
	}
	return fmt.Sprintf("User %d", u.UserID)
}

// platformHandle formats the @handle, empty when the user has none.
func platformHandle(u chat.Update) string {
	if u.Handle == "" {
		return ""
	}
	return "@" + u.Handle
}

// IsMenuButton reports whether text is one of the persistent menu
// labels, for transports that classify presses themselves.
func IsMenuButton(text string) bool {
	switch text {
	case ButtonPriceList, ButtonBooking, ButtonLocation, ButtonSaveContact, ButtonAgent:
		return true
	}
	return false
}
