package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/config"
	"github.com/yeremiapane/campus-gate/controllers"
	"github.com/yeremiapane/campus-gate/middlewares"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
)

// Dependencies -> service yang dipakai controller, dibangun sekali di main
type Dependencies struct {
	Store      store.Store
	Policy     services.ExpirationPolicy
	Correlator *services.Correlator
	Dispatcher *services.Dispatcher
	Monitor    *services.ExpirationMonitor
	CheckIns   *services.CheckInService
	Closer     *services.VisitCloser
	Sessions   *services.SessionRegistry
	Config     config.Config
}

func NewDependencies(s store.Store, cfg config.Config) Dependencies {
	policy := services.ExpirationPolicy{
		Offset:     cfg.Engine.CampusOffset,
		CutoffHour: cfg.Engine.CutoffHour,
	}
	correlator := services.NewCorrelator(services.NewModuloGateAssigner(cfg.Engine.GateRotation...))
	dispatcher := services.NewDispatcher(s, policy)

	return Dependencies{
		Store:      s,
		Policy:     policy,
		Correlator: correlator,
		Dispatcher: dispatcher,
		Monitor:    services.NewExpirationMonitor(s, dispatcher, correlator, policy),
		CheckIns:   services.NewCheckInService(s, policy),
		Closer:     services.NewVisitCloser(s),
		Sessions:   services.NewSessionRegistry(),
		Config:     cfg,
	}
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	cfg := deps.Config
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(cfg.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())
	if cfg.RateLimitRPS > 0 {
		r.Use(middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).RateLimit())
	}

	visitCtrl := controllers.NewVisitController(deps.Store, deps.CheckIns, deps.Closer, deps.Monitor, deps.Correlator)
	notificationCtrl := controllers.NewNotificationController(deps.Store, deps.Monitor, deps.Sessions)
	feedCtrl := controllers.NewFeedController(deps.Store, deps.Monitor, deps.Sessions,
		cfg.Engine.EvaluationInterval, cfg.Engine.FeedReconnectDelay, cfg.CORSOrigin)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "time": time.Now().UTC()})
	})

	// ----------------------------------------------------------------
	//                      GUARD ROUTES
	// ----------------------------------------------------------------
	guard := r.Group("/")
	guard.Use(middlewares.AuthMiddleware())
	guard.Use(middlewares.GuardCheck(deps.Store))

	// VISITS
	guard.POST("/visits", visitCtrl.CheckIn)
	guard.GET("/visits/expired", visitCtrl.GetExpired)
	guard.GET("/visits/:visit_id/identity", visitCtrl.GetIdentity)
	guard.POST("/visits/:visit_id/time-out", visitCtrl.TimeOut)

	// NOTIFICATIONS
	guard.GET("/notifications", notificationCtrl.GetUnread)
	guard.PATCH("/notifications/:notif_id/read", notificationCtrl.MarkRead)
	guard.DELETE("/notifications", notificationCtrl.ClearAll)
	guard.POST("/notifications/refresh", notificationCtrl.Refresh)

	// WebSocket, token lewat ?token=
	guard.GET("/ws/notifications", feedCtrl.Notifications)

	return r
}
