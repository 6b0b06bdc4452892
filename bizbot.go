// Package bizbot wires the conversational service agent together: the
// SQLite store, the RAG index, the LLM pipeline, the chat engine, the
// broadcast worker and the admin panel.
package bizbot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bizbot-il/bizbot/admin"
	"github.com/bizbot-il/bizbot/broadcast"
	"github.com/bizbot-il/bizbot/chat"
	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/engine"
	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/llmutils"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/memory"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/ratelimit"
	"github.com/bizbot-il/bizbot/referral"
	"github.com/bizbot-il/bizbot/seed"
	"github.com/bizbot-il/bizbot/store"
	"github.com/bizbot-il/bizbot/vacation"
)

// ErrNoChatToken is returned when the bot is asked to run without
// chat credentials.
var ErrNoChatToken = errors.New("no chat token configured")

// businessTimezone is fixed; all hours math happens in it.
const businessTimezone = "Asia/Jerusalem"

// App owns every component and their shared lifecycle.
type App struct {
	cfg      *config.Config
	db       *store.Store
	archive  *store.Archive
	rag      *rag.Manager
	engine   *engine.Engine
	panel    *admin.Panel
	telegram *chat.Telegram
	livechat *livechat.Service

	// taskCtx bounds dispatched background work; set by Run
	taskCtx context.Context
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// unavailableSender stands in for the chat transport in admin-only
// mode, so panel actions that need the bot fail with a clear error.
type unavailableSender struct{}

func (unavailableSender) Send(ctx context.Context, userID int64, msg chat.Outgoing) error {
	return fmt.Errorf("chat transport is not running")
}

func (unavailableSender) Typing(ctx context.Context, userID int64) error { return nil }

// New builds the application. The chat transport connects only when a
// token is configured; everything else works without one.
func New(cfg *config.Config) (*App, error) {
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	app := &App{cfg: cfg, db: db, taskCtx: context.Background()}

	if cfg.Archive.URI != "" {
		archive, err := store.NewArchive(store.ArchiveConfig{
			URI:        cfg.Archive.URI,
			Database:   cfg.Archive.Database,
			Collection: cfg.Archive.Collection,
			Timeout:    cfg.Archive.Timeout,
		})
		if err != nil {
			log.Log.Warnf("conversation archive disabled: %v", err)
		} else {
			db.SetArchive(archive)
			app.archive = archive
			log.Log.Infof("conversation archive enabled")
		}
	}

	llmClient := llmutils.NewOpenAIClient(cfg.LLM)

	// Without an API key the embedder falls back to local
	// deterministic vectors, which keeps retrieval functional.
	var embeddingClient llmutils.EmbeddingClient
	if cfg.LLM.APIKey != "" {
		embeddingClient = llmClient
	}
	embedder := rag.NewEmbedder(embeddingClient, cfg.LLM.EmbeddingModel)

	index, err := rag.NewManager(db, embedder, cfg.IndexPath, cfg.RAG)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open rag index: %w", err)
	}
	app.rag = index

	var sender chat.Sender = unavailableSender{}
	if cfg.Chat.Token != "" {
		tg, err := chat.NewTelegram(cfg.Chat.Token, engine.IsMenuButton)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect chat transport: %w", err)
		}
		app.telegram = tg
		sender = tg
		if cfg.Chat.BotUsername == "" {
			cfg.Chat.BotUsername = tg.Username()
		}
	}

	vac := vacation.New(db)
	lc := livechat.New(db, sender)
	ref := referral.New(db, cfg)
	app.livechat = lc

	app.engine = engine.New(engine.Deps{
		Config:     cfg,
		Store:      db,
		RAG:        index,
		Pipeline:   llmutils.NewPipeline(llmClient, cfg.LLM, cfg.Business.Name),
		Hours:      hours.NewResolver(db, businessTimezone),
		Vacation:   vac,
		LiveChat:   lc,
		Referral:   ref,
		Summarizer: memory.NewSummarizer(db, llmClient, cfg.LLM.Model, cfg.Limits.SummaryThreshold),
		Limiter:    ratelimit.New(cfg.Limits.PerMinute, cfg.Limits.PerHour, cfg.Limits.PerDay),
		Sender:     sender,
	})

	app.panel = admin.New(admin.Deps{
		Config:      cfg,
		Store:       db,
		RAG:         index,
		Hours:       hours.NewResolver(db, businessTimezone),
		Vacation:    vac,
		LiveChat:    lc,
		Referral:    ref,
		Broadcaster: broadcast.NewWorker(db, sender),
		Notifier:    app.engine,
		Dispatcher:  app,
	})

	return app, nil
}

// Dispatch runs a panel-initiated task on a goroutine bounded by the
// application lifetime.
func (a *App) Dispatch(task func(ctx context.Context)) {
	a.mu.Lock()
	ctx := a.taskCtx
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		task(ctx)
	}()
}

// Seed populates an empty knowledge base and builds the index.
func (a *App) Seed(ctx context.Context) error {
	return seed.Run(ctx, a.db, a.rag)
}

// HasChatTransport reports whether the bot side can run.
func (a *App) HasChatTransport() bool {
	return a.telegram != nil
}

// Run starts the selected surfaces and blocks until ctx is cancelled
// or a component fails. Background tasks are drained before return.
func (a *App) Run(ctx context.Context, runBot, runAdmin bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.taskCtx = ctx
	a.mu.Unlock()

	// An empty knowledge base gets the demo data so the bot has
	// something to answer from on first boot.
	if err := a.Seed(ctx); err != nil {
		log.Log.Errorf("startup seed failed: %v", err)
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 2)
	running := 0

	if runAdmin {
		running++
		go func() { results <- result{"admin", a.panel.Run(ctx)} }()
	}
	if runBot {
		running++
		go func() { results <- result{"bot", a.runBot(ctx)} }()
	}
	if running == 0 {
		return fmt.Errorf("nothing to run")
	}

	var firstErr error
	for i := 0; i < running; i++ {
		r := <-results
		// One surface going down takes the other with it.
		cancel()
		if r.err != nil && !errors.Is(r.err, context.Canceled) {
			log.Log.Errorf("%s stopped: %v", r.name, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
		}
	}

	a.wg.Wait()
	return firstErr
}

// runBot drives the chat loop. Stale live-chat sessions from a
// previous run are swept here, on bot start only, so an admin-only
// process leaves active takeovers alone.
func (a *App) runBot(ctx context.Context) error {
	if a.telegram == nil {
		return ErrNoChatToken
	}

	a.livechat.SweepStale()

	log.Log.Infof("chat loop started for %s", a.cfg.Business.Name)
	return a.telegram.Run(ctx, a.engine.HandleUpdate)
}

// Close releases the store and the archive connection.
func (a *App) Close() error {
	if a.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Archive.Timeout)
		defer cancel()
		if err := a.archive.Close(ctx); err != nil {
			log.Log.Warnf("failed to close archive: %v", err)
		}
	}
	return a.db.Close()
}
