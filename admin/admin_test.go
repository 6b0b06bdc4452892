package admin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/broadcast"
	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/referral"
	"github.com/bizbot-il/bizbot/store"
	"github.com/bizbot-il/bizbot/vacation"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]chat.Outgoing
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64][]chat.Outgoing{}}
}

func (f *fakeSender) Send(ctx context.Context, userID int64, msg chat.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], msg)
	return nil
}

func (f *fakeSender) Typing(ctx context.Context, userID int64) error { return nil }

func (f *fakeSender) count(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[userID])
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []*model.Appointment
	msgs  []string
}

func (f *fakeNotifier) AppointmentStatusChanged(ctx context.Context, appt *model.Appointment, ownerMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, appt)
	f.msgs = append(f.msgs, ownerMessage)
}

type panelEnv struct {
	panel  *Panel
	router *gin.Engine
	db     *store.Store
	rag    *rag.Manager
	sender *fakeSender
	notify *fakeNotifier
	cookie string
}

func newPanelEnv(t *testing.T) *panelEnv {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Chat: config.ChatConfig{BotUsername: "my_salon_bot"},
		RAG:  config.RAGConfig{TopK: 5, MinRelevance: -1, ChunkMaxTokens: 300},
		Admin: config.AdminConfig{
			Username:  "owner",
			Password:  "secret123",
			SecretKey: "test-secret-key",
			Host:      "127.0.0.1",
			Port:      8080,
		},
		Business: config.BusinessConfig{Name: "Dana's Beauty Salon"},
	}

	embedder := rag.NewEmbedder(nil, "text-embedding-3-small")
	mgr, err := rag.NewManager(db, embedder, t.TempDir(), cfg.RAG)
	if err != nil {
		t.Fatalf("new rag manager: %v", err)
	}

	sender := newFakeSender()
	notify := &fakeNotifier{}

	p := New(Deps{
		Config:      cfg,
		Store:       db,
		RAG:         mgr,
		Hours:       hours.NewResolver(db, "UTC"),
		Vacation:    vacation.New(db),
		LiveChat:    livechat.New(db, sender),
		Referral:    referral.New(db, cfg),
		Broadcaster: broadcast.NewWorker(db, sender),
		Notifier:    notify,
		Dispatcher: DispatchFunc(func(task func(ctx context.Context)) {
			task(context.Background())
		}),
	})

	return &panelEnv{
		panel:  p,
		router: p.Router(),
		db:     db,
		rag:    mgr,
		sender: sender,
		notify: notify,
	}
}

// login authenticates and stores the session cookie for later requests.
func (env *panelEnv) login(t *testing.T) {
	t.Helper()
	form := url.Values{"username": {"owner"}, "password": {"secret123"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("login status = %d, want redirect", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			env.cookie = c.Value
			return
		}
	}
	t.Fatal("login did not set a session cookie")
}

func (env *panelEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if env.cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: env.cookie})
	}
	env.router.ServeHTTP(w, req)
	return w
}

func (env *panelEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if env.cookie != "" && form.Get("csrf_token") == "" {
		form.Set("csrf_token", env.panel.sessions.csrfToken(env.cookie))
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if env.cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: env.cookie})
	}
	env.router.ServeHTTP(w, req)
	return w
}

func TestLoginRequired(t *testing.T) {
	env := newPanelEnv(t)

	w := env.get(t, "/kb")
	if w.Code != http.StatusFound {
		t.Fatalf("unauthenticated page status = %d, want redirect", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/login") {
		t.Errorf("redirect target = %q, want /login", loc)
	}

	w = env.get(t, "/api/stats")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated API status = %d, want 401", w.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newPanelEnv(t)

	form := url.Values{"username": {"owner"}, "password": {"wrong"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	env.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			t.Fatal("bad credentials must not issue a session")
		}
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect target = %q, want /login", loc)
	}
}

func TestPasswordHashLogin(t *testing.T) {
	env := newPanelEnv(t)
	// sha256("secret123")
	env.panel.cfg.Admin.Password = ""
	env.panel.cfg.Admin.PasswordHash = "fcf730b6d95236ecd3c9fc2d92d7b6b2bb061514961aec041d6c7a7192f592e4"

	if !env.panel.checkCredentials("owner", "secret123") {
		t.Error("hash login must accept the correct password")
	}
	if env.panel.checkCredentials("owner", "secret124") {
		t.Error("hash login must reject a wrong password")
	}
}

func TestSessionTamperRejected(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	session := env.cookie
	if !env.panel.sessions.verify(session, time.Now()) {
		t.Fatal("fresh session must verify")
	}
	if env.panel.sessions.verify(session+"x", time.Now()) {
		t.Error("tampered signature must not verify")
	}
	if env.panel.sessions.verify("admin:9999999999:deadbeef", time.Now()) {
		t.Error("forged payload must not verify")
	}
	if env.panel.sessions.verify(session, time.Now().Add(sessionTTL+time.Hour)) {
		t.Error("expired session must not verify")
	}
}

func TestCSRFRequiredOnPost(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	form := url.Values{
		"category": {"Pricing"},
		"title":    {"Summer"},
		"content":  {"Haircut: $65"},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kb/add", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: env.cookie})
	env.router.ServeHTTP(w, req)

	entries, _ := env.db.ListKBEntries(false)
	if len(entries) != 0 {
		t.Error("POST without a CSRF token must not write")
	}
}

func TestKBAddMarksIndexStale(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	w := env.post(t, "/kb/add", url.Values{
		"category": {"Pricing"},
		"title":    {"Summer 2025"},
		"content":  {"Haircut: $65"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("kb add status = %d, want redirect", w.Code)
	}

	entries, err := env.db.ListKBEntries(false)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one kb entry, got %d (err=%v)", len(entries), err)
	}
	if entries[0].Title != "Summer 2025" {
		t.Errorf("entry title = %q", entries[0].Title)
	}
	if !env.rag.IsStale() {
		t.Error("kb add must mark the index stale")
	}
}

func TestKBAddRequiresAllFields(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	env.post(t, "/kb/add", url.Values{"category": {"Pricing"}, "title": {""}, "content": {"x"}})

	entries, _ := env.db.ListKBEntries(false)
	if len(entries) != 0 {
		t.Error("missing fields must not create an entry")
	}
}

func TestKBAddResolvesKnowledgeGap(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	gapID, err := env.db.CreateUnansweredQuestion(7, "Dana", "do you offer manicures?")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	env.post(t, "/kb/add", url.Values{
		"category": {"Services"},
		"title":    {"Manicures"},
		"content":  {"Yes, starting at $40."},
		"gap_id":   {fmt.Sprint(gapID)},
	})

	open, err := env.db.ListUnansweredQuestions("open")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	for _, q := range open {
		if q.ID == gapID {
			t.Error("adding the answer must resolve the gap")
		}
	}
}

func TestAppointmentConfirmNotifies(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	id, err := env.db.CreateAppointment(model.Appointment{
		UserID: 10, Username: "Dana", Service: "צבע",
		PreferredDate: "יום שלישי", PreferredTime: "10:00",
		Status: model.AppointmentPending,
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	env.post(t, "/appointments/1/update", url.Values{
		"status":        {"confirmed"},
		"owner_message": {"מחכים לראות אתכם"},
	})

	appt, err := env.db.GetAppointment(id)
	if err != nil || appt == nil {
		t.Fatalf("get appointment: %v", err)
	}
	if appt.Status != model.AppointmentConfirmed {
		t.Errorf("status = %q, want confirmed", appt.Status)
	}

	env.notify.mu.Lock()
	defer env.notify.mu.Unlock()
	if len(env.notify.calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(env.notify.calls))
	}
	if env.notify.calls[0].Status != model.AppointmentConfirmed {
		t.Errorf("notified status = %q", env.notify.calls[0].Status)
	}
	if env.notify.msgs[0] != "מחכים לראות אתכם" {
		t.Errorf("owner message = %q", env.notify.msgs[0])
	}
}

func TestAppointmentUpdateRejectsBadStatus(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	id, _ := env.db.CreateAppointment(model.Appointment{
		UserID: 10, Username: "Dana", Service: "צבע", Status: model.AppointmentPending,
	})

	env.post(t, "/appointments/1/update", url.Values{"status": {"sideways"}})

	appt, _ := env.db.GetAppointment(id)
	if appt.Status != model.AppointmentPending {
		t.Errorf("invalid status must not change the row, got %q", appt.Status)
	}
	if len(env.notify.calls) != 0 {
		t.Error("invalid status must not notify")
	}
}

func TestRequestHandleFlow(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	id, err := env.db.CreateAgentRequest(5, "Dana", "dana", "הלקוח מבקש לדבר עם נציג אנושי.")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	env.post(t, "/requests/1/handle", url.Values{"status": {"handled"}})

	pending, _ := env.db.ListAgentRequests("pending")
	if len(pending) != 0 {
		t.Error("handled request must leave the pending list")
	}
	handled, _ := env.db.ListAgentRequests("handled")
	if len(handled) != 1 || handled[0].ID != id {
		t.Errorf("request %d not in handled list", id)
	}
}

func TestBroadcastSendDispatches(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	for _, uid := range []int64{1, 2, 3} {
		if err := env.db.EnsureSubscriber(uid, "u"); err != nil {
			t.Fatalf("ensure subscriber: %v", err)
		}
	}

	env.post(t, "/broadcast", url.Values{
		"message":  {"מבצע סוף עונה!"},
		"audience": {"all"},
	})

	// Synchronous dispatcher: delivery finished before the redirect.
	broadcasts, err := env.db.ListBroadcasts(10)
	if err != nil || len(broadcasts) != 1 {
		t.Fatalf("expected one broadcast, got %d (err=%v)", len(broadcasts), err)
	}
	b := broadcasts[0]
	if b.Status != model.BroadcastCompleted || b.SentCount != 3 {
		t.Errorf("broadcast state = %s sent=%d, want completed/3", b.Status, b.SentCount)
	}
	for _, uid := range []int64{1, 2, 3} {
		if env.sender.count(uid) != 1 {
			t.Errorf("user %d received %d messages, want 1", uid, env.sender.count(uid))
		}
	}
}

func TestVacationToggle(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	env.post(t, "/vacation-mode", url.Values{
		"is_active":         {"1"},
		"vacation_end_date": {"2026-09-15"},
	})

	if !env.panel.vacation.Active() {
		t.Error("vacation mode must be active after enabling")
	}

	env.post(t, "/vacation-mode", url.Values{})
	if env.panel.vacation.Active() {
		t.Error("vacation mode must be off after saving without is_active")
	}
}

func TestPersonalityToneValidation(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	env.post(t, "/bot-personality", url.Values{
		"tone":              {"sales"},
		"follow_up_enabled": {"1"},
		"custom_phrases":    {"הזכירי את מבצע החודש"},
	})

	settings, err := env.db.BotSettings()
	if err != nil {
		t.Fatalf("bot settings: %v", err)
	}
	if settings.Tone != model.ToneSales || settings.CustomPhrases == "" {
		t.Errorf("settings not saved: %+v", settings)
	}

	env.post(t, "/bot-personality", url.Values{"tone": {"sarcastic"}})
	settings, _ = env.db.BotSettings()
	if settings.Tone != model.ToneSales {
		t.Errorf("unknown tone must not overwrite, got %q", settings.Tone)
	}
}

func TestBusinessHoursSave(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	form := url.Values{}
	for day := 0; day < 5; day++ {
		form.Set(fmt.Sprintf("open_%d", day), "09:00")
		form.Set(fmt.Sprintf("close_%d", day), "19:00")
	}
	form.Set("closed_5", "1")
	form.Set("closed_6", "1")
	env.post(t, "/business-hours", form)

	weekly, err := env.db.BusinessHours()
	if err != nil {
		t.Fatalf("business hours: %v", err)
	}
	byDay := map[int]model.DayHours{}
	for _, h := range weekly {
		byDay[h.Day] = h
	}
	if byDay[0].Open != "09:00" || byDay[0].Closed {
		t.Errorf("day 0 = %+v, want open 09:00", byDay[0])
	}
	if !byDay[6].Closed {
		t.Errorf("day 6 = %+v, want closed", byDay[6])
	}
}

func TestAPIStats(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	if _, err := env.db.CreateAgentRequest(1, "Dana", "dana", "reason"); err != nil {
		t.Fatalf("create request: %v", err)
	}

	w := env.get(t, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("api stats status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"pending_requests":1`) {
		t.Errorf("stats body missing pending_requests: %s", body)
	}
	if !strings.Contains(body, `"vacation_active":false`) {
		t.Errorf("stats body missing vacation_active: %s", body)
	}
}

func TestQRDownloadIsPNG(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	w := env.get(t, "/qr-code/download?scale=5")
	if w.Code != http.StatusOK {
		t.Fatalf("qr download status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "qr_my_salon_bot.png") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
}

func TestLiveChatStartEndFromPanel(t *testing.T) {
	env := newPanelEnv(t)
	env.login(t)

	env.post(t, "/live-chat/42/start", url.Values{"username": {"Dana"}})
	if !env.panel.livechat.Active(42) {
		t.Fatal("live chat must be active after start")
	}
	if env.sender.count(42) != 1 {
		t.Errorf("customer should get the takeover notice, got %d messages", env.sender.count(42))
	}

	env.post(t, "/live-chat/42/send", url.Values{"message": {"here, one moment"}})
	if env.sender.count(42) != 2 {
		t.Errorf("operator message not delivered, got %d messages", env.sender.count(42))
	}

	env.post(t, "/live-chat/42/end", url.Values{})
	if env.panel.livechat.Active(42) {
		t.Error("live chat must be inactive after end")
	}
}
