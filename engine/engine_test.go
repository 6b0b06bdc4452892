package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/intent"
	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/llmutils"
	"github.com/bizbot-il/bizbot/memory"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/ratelimit"
	"github.com/bizbot-il/bizbot/referral"
	"github.com/bizbot-il/bizbot/store"
	"github.com/bizbot-il/bizbot/vacation"
)

type sentMessage struct {
	userID int64
	msg    chat.Outgoing
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, userID int64, msg chat.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{userID: userID, msg: msg})
	return nil
}

func (f *fakeSender) Typing(ctx context.Context, userID int64) error { return nil }

// to returns every message sent to one user, in order.
func (f *fakeSender) to(userID int64) []chat.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Outgoing
	for _, m := range f.sent {
		if m.userID == userID {
			out = append(out, m.msg)
		}
	}
	return out
}

func (f *fakeSender) last(userID int64) chat.Outgoing {
	msgs := f.to(userID)
	if len(msgs) == 0 {
		return chat.Outgoing{}
	}
	return msgs[len(msgs)-1]
}

// scriptedLLM replies with the queued answers in order, repeating the
// last one when the queue runs dry.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *scriptedLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	reply := "תשובה כללית.\nמקור: מידע כללי"
	if len(f.replies) > 0 {
		reply = f.replies[0]
		if len(f.replies) > 1 {
			f.replies = f.replies[1:]
		}
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func (f *scriptedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	engine *Engine
	db     *store.Store
	rag    *rag.Manager
	sender *fakeSender
	llm    *scriptedLLM
	ref    *referral.Service
	lc     *livechat.Service
	vac    *vacation.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Chat: config.ChatConfig{OwnerChatID: "999", BotUsername: "my_salon_bot"},
		LLM: config.LLMConfig{
			Model:         "gpt-4o-mini",
			MaxTokens:     512,
			ContextWindow: 10,
		},
		RAG: config.RAGConfig{
			TopK:           5,
			MinRelevance:   -1,
			ChunkMaxTokens: 300,
			PricingPrefix:  "מחירון: ",
		},
		Business: config.BusinessConfig{Name: "Dana's Beauty Salon"},
		Referral: config.ReferralConfig{Engaged30m: 10, Engaged24h: 20},
	}

	llm := &scriptedLLM{}
	sender := &fakeSender{}

	embedder := rag.NewEmbedder(nil, "text-embedding-3-small")
	mgr, err := rag.NewManager(db, embedder, t.TempDir(), cfg.RAG)
	if err != nil {
		t.Fatalf("new rag manager: %v", err)
	}

	vac := vacation.New(db)
	lc := livechat.New(db, sender)
	ref := referral.New(db, cfg)

	e := New(Deps{
		Config:     cfg,
		Store:      db,
		RAG:        mgr,
		Pipeline:   llmutils.NewPipeline(llm, cfg.LLM, cfg.Business.Name),
		Hours:      hours.NewResolver(db, "UTC"),
		Vacation:   vac,
		LiveChat:   lc,
		Referral:   ref,
		Summarizer: memory.NewSummarizer(db, llm, cfg.LLM.Model, 50),
		Limiter:    ratelimit.New(100, 1000, 10000),
		Sender:     sender,
	})
	e.background = func(fn func()) { fn() }

	return &testEnv{engine: e, db: db, rag: mgr, sender: sender, llm: llm, ref: ref, lc: lc, vac: vac}
}

func textUpdate(userID int64, text string) chat.Update {
	return chat.Update{UserID: userID, DisplayName: "Dana", Handle: "dana", Kind: chat.KindText, Text: text}
}

func (env *testEnv) addKB(t *testing.T, category, title, content string) {
	t.Helper()
	if _, err := env.db.CreateKBEntry(category, title, content); err != nil {
		t.Fatalf("create kb entry: %v", err)
	}
	env.rag.MarkStale()
}

func TestGreetingShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, textUpdate(1, "שלום"))

	if got := env.llm.callCount(); got != 0 {
		t.Errorf("greeting must not reach the LLM, got %d calls", got)
	}

	want, _ := intent.DirectResponse(intent.Greeting)
	if env.sender.last(1).Text != want {
		t.Errorf("wrong greeting reply: %q", env.sender.last(1).Text)
	}

	msgs, err := env.db.RecentMessages(1, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Errorf("expected exactly user+assistant rows, got %+v", msgs)
	}
}

func TestPricingQueryWithCitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addKB(t, "Pricing", "Summer 2025", "Haircut: $65")
	env.llm.replies = []string{"A haircut is $65.\nSource: Pricing"}

	env.engine.HandleUpdate(ctx, textUpdate(1, "how much for a haircut?"))

	if env.llm.callCount() != 1 {
		t.Fatalf("expected one LLM call, got %d", env.llm.callCount())
	}

	visible := env.sender.last(1).Text
	if strings.Contains(visible, "Source:") {
		t.Errorf("citation must be stripped from the visible text: %q", visible)
	}
	if !strings.Contains(visible, "$65") {
		t.Errorf("answer content missing: %q", visible)
	}

	msgs, _ := env.db.RecentMessages(1, 10)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(msgs))
	}
	stored := msgs[1]
	if !strings.Contains(stored.Text, "Source:") {
		t.Errorf("stored raw answer must keep the citation: %q", stored.Text)
	}
	found := false
	for _, s := range stored.Sources {
		if s == "Pricing — Summer 2025" {
			found = true
		}
	}
	if !found {
		t.Errorf("sources missing the KB entry label: %v", stored.Sources)
	}
}

func TestHandoffOnEmptyKB(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, textUpdate(1, "do you offer manicures?"))

	if env.llm.callCount() != 0 {
		t.Errorf("empty KB must not reach the LLM, got %d calls", env.llm.callCount())
	}
	if env.sender.last(1).Text != llmutils.Fallback {
		t.Errorf("reply must be the fallback string, got %q", env.sender.last(1).Text)
	}

	requests, err := env.db.ListAgentRequests("pending")
	if err != nil || len(requests) != 1 {
		t.Fatalf("expected one pending agent request, got %d (err=%v)", len(requests), err)
	}
	if !strings.Contains(requests[0].Reason, "do you offer manicures?") {
		t.Errorf("request reason missing the question: %q", requests[0].Reason)
	}

	questions, err := env.db.ListUnansweredQuestions("open")
	if err != nil || len(questions) != 1 {
		t.Fatalf("expected one open unanswered question, got %d (err=%v)", len(questions), err)
	}

	ownerMsgs := env.sender.to(999)
	if len(ownerMsgs) != 1 || !strings.Contains(ownerMsgs[0].Text, "בקשת נציג") {
		t.Errorf("owner notification missing: %v", ownerMsgs)
	}
}

func TestLiveChatSilencesBot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if ok, status := env.lc.Start(ctx, 1, "Dana"); !ok {
		t.Fatalf("start live chat: %s", status)
	}
	before := len(env.sender.to(1))

	env.engine.HandleUpdate(ctx, textUpdate(1, "hello?"))
	env.engine.HandleUpdate(ctx, textUpdate(1, "anyone there?"))

	if got := len(env.sender.to(1)); got != before {
		t.Errorf("bot replied during live chat: %d new messages", got-before)
	}
	msgs, _ := env.db.RecentMessages(1, 10)
	users := 0
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			users++
		}
	}
	if users != 2 {
		t.Errorf("live-chat inbound messages must be persisted, got %d", users)
	}

	if ok, status := env.lc.End(ctx, 1); !ok {
		t.Fatalf("end live chat: %s", status)
	}

	// Normal routing resumes after the takeover ends.
	env.engine.HandleUpdate(ctx, textUpdate(1, "שלום"))
	want, _ := intent.DirectResponse(intent.Greeting)
	if env.sender.last(1).Text != want {
		t.Errorf("bot did not resume after live chat: %q", env.sender.last(1).Text)
	}
}

func TestRateLimitBlocksAtCap(t *testing.T) {
	env := newTestEnv(t)
	env.engine.limiter = ratelimit.New(2, 100, 1000)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, textUpdate(1, "שלום"))
	env.engine.HandleUpdate(ctx, textUpdate(1, "שלום"))
	env.engine.HandleUpdate(ctx, textUpdate(1, "שלום"))

	last := env.sender.last(1).Text
	if !strings.Contains(last, "קצב ההודעות מהיר מדי") {
		t.Errorf("third message should hit the minute window: %q", last)
	}

	msgs, _ := env.db.RecentMessages(1, 20)
	if len(msgs) != 4 {
		t.Errorf("rate-limited message must not be persisted, got %d rows", len(msgs))
	}
}

func TestBookingIntentGuidesToButton(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, textUpdate(1, "רוצה לקבוע תור"))

	if env.sender.last(1).Text != bookingGuidanceText {
		t.Errorf("typed booking request should point at the button: %q", env.sender.last(1).Text)
	}
	if env.engine.bookingFor(1) != nil {
		t.Error("typed booking request must not start the state machine")
	}
}

func TestBookingIntentDuringVacation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.vac.Set(model.Vacation{Active: true, EndDate: "2026-09-01"}); err != nil {
		t.Fatalf("set vacation: %v", err)
	}

	env.engine.HandleUpdate(ctx, textUpdate(1, "אפשר לקבוע תור?"))

	if env.sender.last(1).Text != env.vac.BookingMessage() {
		t.Errorf("vacation booking message expected, got %q", env.sender.last(1).Text)
	}
}

func TestAgentButtonDuringVacation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.vac.Set(model.Vacation{Active: true})

	env.engine.HandleUpdate(ctx, textUpdate(1, ButtonAgent))

	if env.sender.last(1).Text != env.vac.AgentMessage() {
		t.Errorf("vacation agent message expected, got %q", env.sender.last(1).Text)
	}
	requests, _ := env.db.ListAgentRequests("pending")
	if len(requests) != 0 {
		t.Error("no agent request should be filed during vacation")
	}
}

func TestCancelIntentConfirmFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, textUpdate(1, "אני רוצה לבטל את התור"))

	last := env.sender.last(1)
	if last.Text != cancelConfirmText {
		t.Fatalf("expected the confirmation prompt, got %q", last.Text)
	}
	if len(last.InlineKeyboard) != 1 || len(last.InlineKeyboard[0]) != 2 {
		t.Fatalf("expected yes/no inline buttons, got %v", last.InlineKeyboard)
	}

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 1, DisplayName: "Dana", Kind: chat.KindCallback, CallbackData: "cancel_appt_yes",
	})

	requests, _ := env.db.ListAgentRequests("pending")
	if len(requests) != 1 || requests[0].Reason != "הלקוח אישר ביטול תור." {
		t.Fatalf("cancellation request missing or wrong: %+v", requests)
	}
	if env.sender.last(1).Text != cancelAcceptedText {
		t.Errorf("wrong cancellation reply: %q", env.sender.last(1).Text)
	}
}

func TestCancelCallbackNoKeepsAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 1, DisplayName: "Dana", Kind: chat.KindCallback, CallbackData: "cancel_appt_no",
	})

	if env.sender.last(1).Text != cancelKeptText {
		t.Errorf("wrong reply: %q", env.sender.last(1).Text)
	}
	requests, _ := env.db.ListAgentRequests("pending")
	if len(requests) != 0 {
		t.Error("declining must not file a request")
	}
}

func TestStartCommandRegistersReferral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.ref.GenerateCode(10)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 20, DisplayName: "Noa", Kind: chat.KindCommand, Text: "/start " + code,
	})

	welcome := env.sender.last(20).Text
	if !strings.Contains(welcome, "ברוכים הבאים") || !strings.Contains(welcome, "הגעתם דרך הפניה") {
		t.Errorf("welcome missing the referral addendum: %q", welcome)
	}

	ref, err := env.db.ReferralByReferred(20)
	if err != nil || ref == nil {
		t.Fatalf("referral not registered: %v", err)
	}
	if ok, _ := env.db.IsSubscribed(20); !ok {
		t.Error("/start must subscribe the user")
	}
}

func TestStartCommandPlain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 1, DisplayName: "Dana", Kind: chat.KindCommand, Text: "/start",
	})

	welcome := env.sender.last(1).Text
	if strings.Contains(welcome, "הגעתם דרך הפניה") {
		t.Errorf("plain /start must not mention a referral: %q", welcome)
	}
	if len(env.sender.last(1).Keyboard) != 3 {
		t.Errorf("welcome must carry the main keyboard: %v", env.sender.last(1).Keyboard)
	}
}

func TestStopAndSubscribeCommands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, chat.Update{UserID: 1, Kind: chat.KindCommand, Text: "/start"})
	env.engine.HandleUpdate(ctx, chat.Update{UserID: 1, Kind: chat.KindCommand, Text: "/stop"})
	if ok, _ := env.db.IsSubscribed(1); ok {
		t.Error("/stop must unsubscribe")
	}

	env.engine.HandleUpdate(ctx, chat.Update{UserID: 1, Kind: chat.KindCommand, Text: "/subscribe"})
	if ok, _ := env.db.IsSubscribed(1); !ok {
		t.Error("/subscribe must resubscribe")
	}
}

func TestAppointmentConfirmationTriggersReferral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.ref.GenerateCode(10)
	if ok, err := env.ref.Register(code, 20); err != nil || !ok {
		t.Fatalf("register referral: ok=%v err=%v", ok, err)
	}

	apptID, err := env.db.CreateAppointment(model.Appointment{
		UserID: 20, Username: "Noa", Service: "תספורת", PreferredDate: "מחר", PreferredTime: "10:00",
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	if err := env.db.UpdateAppointmentStatus(apptID, model.AppointmentConfirmed); err != nil {
		t.Fatalf("confirm appointment: %v", err)
	}
	appt, err := env.db.GetAppointment(apptID)
	if err != nil || appt == nil {
		t.Fatalf("get appointment: %v", err)
	}

	env.engine.AppointmentStatusChanged(ctx, appt, "מחכים לראות אתכם")

	ref, _ := env.db.ReferralByReferred(20)
	if ref.Status != model.ReferralCompleted {
		t.Errorf("referral not completed: %s", ref.Status)
	}
	for _, userID := range []int64{10, 20} {
		credits, _ := env.db.UserCredits(userID)
		if len(credits) != 1 || credits[0].Amount != 10 {
			t.Errorf("user %d missing the 10%% credit: %+v", userID, credits)
		}
	}

	var sawStatus, sawCode bool
	for _, m := range env.sender.to(20) {
		if strings.Contains(m.Text, "אושר") && strings.Contains(m.Text, "מחכים לראות אתכם") {
			sawStatus = true
		}
		if strings.Contains(m.Text, "REF_") {
			sawCode = true
		}
	}
	if !sawStatus {
		t.Error("customer did not receive the confirmation notification")
	}
	if !sawCode {
		t.Error("referral code offer was not attempted")
	}
}

func TestAppointmentCancelledNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	apptID, _ := env.db.CreateAppointment(model.Appointment{
		UserID: 1, Username: "Dana", Service: "צבע", PreferredDate: "שלישי", PreferredTime: "12:00",
	})
	env.db.UpdateAppointmentStatus(apptID, model.AppointmentCancelled)
	appt, _ := env.db.GetAppointment(apptID)

	env.engine.AppointmentStatusChanged(ctx, appt, "")

	last := env.sender.last(1).Text
	if !strings.Contains(last, "בוטל") || !strings.Contains(last, "/book") {
		t.Errorf("cancellation notification wrong: %q", last)
	}
}

func TestFollowUpSuggestionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addKB(t, "Services", "טיפולים", "אנחנו מציעים תספורת, צבע ופן.")
	env.llm.replies = []string{
		"אנחנו מציעים תספורת, צבע ופן.\nמקור: טיפולים\n[follow_up: כמה עולה צבע? | מה שעות הפתיחה?]",
		"צבע עולה 200 שקל.\nמקור: טיפולים",
	}

	env.engine.HandleUpdate(ctx, textUpdate(1, "מה אתם מציעים?"))

	first := env.sender.last(1)
	if len(first.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 follow-up rows, got %v", first.InlineKeyboard)
	}
	if first.InlineKeyboard[0][0].Data != "fu:0" {
		t.Errorf("unexpected callback data: %q", first.InlineKeyboard[0][0].Data)
	}

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 1, DisplayName: "Dana", Kind: chat.KindCallback, CallbackData: "fu:0",
	})

	if !strings.Contains(env.sender.last(1).Text, "200") {
		t.Errorf("follow-up did not produce the scripted answer: %q", env.sender.last(1).Text)
	}

	msgs, _ := env.db.RecentMessages(1, 10)
	var sawQuestion bool
	for _, m := range msgs {
		if m.Role == model.RoleUser && m.Text == "כמה עולה צבע?" {
			sawQuestion = true
		}
	}
	if !sawQuestion {
		t.Error("follow-up question was not persisted as a user message")
	}
}

func TestFollowUpExpiredAfterRestart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, chat.Update{
		UserID: 1, Kind: chat.KindCallback, CallbackData: "fu:1",
	})

	if env.sender.last(1).Text != followUpExpiredText {
		t.Errorf("stale follow-up should apologize, got %q", env.sender.last(1).Text)
	}
}
