// Package admin serves the owner's management panel: knowledge base,
// conversations, live chat, requests, appointments, schedule, vacation
// mode, personality, referrals, broadcasts and the share QR code.
// Pages are Hebrew RTL HTML; /api routes return JSON.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/hours"
	"github.com/bizbot-il/bizbot/livechat"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/rag"
	"github.com/bizbot-il/bizbot/referral"
	"github.com/bizbot-il/bizbot/store"
	"github.com/bizbot-il/bizbot/vacation"
)

// Dispatcher schedules background work from HTTP handlers. The app runs
// tasks on goroutines tied to its lifecycle context; in tests a
// synchronous dispatcher keeps assertions simple.
type Dispatcher interface {
	Dispatch(task func(ctx context.Context))
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(task func(ctx context.Context))

func (f DispatchFunc) Dispatch(task func(ctx context.Context)) { f(task) }

// Notifier delivers appointment status changes to the customer. The
// chat engine implements it; a nil notifier skips the notification.
type Notifier interface {
	AppointmentStatusChanged(ctx context.Context, appt *model.Appointment, ownerMessage string)
}

// Broadcaster creates and runs broadcast jobs.
type Broadcaster interface {
	Create(text, audience string) (int64, []int64, error)
	Run(ctx context.Context, broadcastID int64, text string, recipients []int64)
}

// Deps carries everything the panel needs.
type Deps struct {
	Config      *config.Config
	Store       *store.Store
	RAG         *rag.Manager
	Hours       *hours.Resolver
	Vacation    *vacation.Service
	LiveChat    *livechat.Service
	Referral    *referral.Service
	Broadcaster Broadcaster
	Notifier    Notifier
	Dispatcher  Dispatcher
}

// Panel is the admin HTTP surface.
type Panel struct {
	cfg         *config.Config
	db          *store.Store
	rag         *rag.Manager
	hours       *hours.Resolver
	vacation    *vacation.Service
	livechat    *livechat.Service
	referral    *referral.Service
	broadcaster Broadcaster
	notifier    Notifier
	dispatcher  Dispatcher

	sessions *sessionCodec
}

// New builds the panel. Dispatcher defaults to plain goroutines.
func New(d Deps) *Panel {
	dispatcher := d.Dispatcher
	if dispatcher == nil {
		dispatcher = DispatchFunc(func(task func(ctx context.Context)) {
			go task(context.Background())
		})
	}
	return &Panel{
		cfg:         d.Config,
		db:          d.Store,
		rag:         d.RAG,
		hours:       d.Hours,
		vacation:    d.Vacation,
		livechat:    d.LiveChat,
		referral:    d.Referral,
		broadcaster: d.Broadcaster,
		notifier:    d.Notifier,
		dispatcher:  dispatcher,
		sessions:    newSessionCodec(d.Config.Admin.SecretKey),
	}
}

// Router builds the gin engine with all panel routes registered.
func (p *Panel) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/login", p.handleLoginPage)
	router.POST("/login", p.handleLogin)
	router.GET("/logout", p.handleLogout)

	auth := router.Group("/", p.requireLogin)
	{
		auth.GET("/", p.handleDashboard)

		auth.GET("/kb", p.handleKBList)
		auth.GET("/kb/add", p.handleKBAddPage)
		auth.POST("/kb/add", p.handleKBAdd)
		auth.GET("/kb/edit/:id", p.handleKBEditPage)
		auth.POST("/kb/edit/:id", p.handleKBEdit)
		auth.POST("/kb/delete/:id", p.handleKBDelete)
		auth.POST("/kb/rebuild", p.handleKBRebuild)

		auth.GET("/conversations", p.handleConversations)
		auth.GET("/live-chat/:user_id", p.handleLiveChatPage)
		auth.POST("/live-chat/:user_id/start", p.handleLiveChatStart)
		auth.POST("/live-chat/:user_id/end", p.handleLiveChatEnd)
		auth.POST("/live-chat/:user_id/send", p.handleLiveChatSend)

		auth.GET("/requests", p.handleRequests)
		auth.POST("/requests/:id/handle", p.handleRequestUpdate)
		auth.GET("/appointments", p.handleAppointments)
		auth.POST("/appointments/:id/update", p.handleAppointmentUpdate)
		auth.GET("/knowledge-gaps", p.handleKnowledgeGaps)
		auth.POST("/knowledge-gaps/:id/resolve", p.handleGapResolve)

		auth.GET("/business-hours", p.handleBusinessHoursPage)
		auth.POST("/business-hours", p.handleBusinessHoursSave)
		auth.POST("/business-hours/special-days/add", p.handleSpecialDayAdd)
		auth.POST("/business-hours/special-days/:id/delete", p.handleSpecialDayDelete)

		auth.GET("/vacation-mode", p.handleVacationPage)
		auth.POST("/vacation-mode", p.handleVacationSave)
		auth.GET("/bot-personality", p.handlePersonalityPage)
		auth.POST("/bot-personality", p.handlePersonalitySave)

		auth.GET("/referrals", p.handleReferrals)

		auth.GET("/broadcast", p.handleBroadcastPage)
		auth.POST("/broadcast", p.handleBroadcastSend)

		auth.GET("/qr-code", p.handleQRPage)
		auth.GET("/qr-code/preview", p.handleQRPreview)
		auth.GET("/qr-code/download", p.handleQRDownload)

		auth.GET("/api/stats", p.handleAPIStats)
		auth.GET("/api/live-chat/:user_id/messages", p.handleAPILiveChatMessages)
	}

	return router
}

// Run serves the panel until ctx is cancelled.
func (p *Panel) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         p.cfg.AdminAddress(),
		Handler:      p.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Log.Infof("admin panel listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down admin server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// paramID parses a numeric path parameter, returning 0 when malformed.
func paramID(c *gin.Context, name string) int64 {
	return parseID(c.Param(name))
}

// parseID parses a numeric form value, returning 0 when malformed.
func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
