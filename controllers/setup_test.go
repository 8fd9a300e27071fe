package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/campus-gate/controllers"
	"github.com/yeremiapane/campus-gate/database"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/middlewares"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

var campus = time.FixedZone("campus", 8*60*60)

type apiEnv struct {
	store    *store.GormStore
	hub      *feed.Hub
	policy   services.ExpirationPolicy
	monitor  *services.ExpirationMonitor
	sessions *services.SessionRegistry
	changes  *services.ChangeMonitor
	router   *gin.Engine
}

func newAPIEnv(t *testing.T, now time.Time) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	hub := feed.NewHub(32)
	t.Cleanup(hub.Close)

	s := store.NewGormStore(db, hub)
	policy := services.DefaultExpirationPolicy()
	correlator := services.NewCorrelator(services.NewModuloGateAssigner("Gate 1", "Gate 2"))
	monitor := services.NewExpirationMonitor(s, services.NewDispatcher(s, policy), correlator, policy)
	monitor.Now = func() time.Time { return now }
	checkIns := services.NewCheckInService(s, policy)
	checkIns.Now = func() time.Time { return now }
	closer := services.NewVisitCloser(s)
	closer.Now = func() time.Time { return now }
	sessions := services.NewSessionRegistry()
	t.Cleanup(sessions.CloseAll)

	visitCtrl := controllers.NewVisitController(s, checkIns, closer, monitor, correlator)
	notifCtrl := controllers.NewNotificationController(s, monitor, sessions)
	feedCtrl := controllers.NewFeedController(s, monitor, sessions, time.Hour, 10*time.Millisecond, "")

	r := gin.New()
	g := r.Group("/")
	g.Use(middlewares.AuthMiddleware(), middlewares.GuardCheck(s))
	g.POST("/visits", visitCtrl.CheckIn)
	g.GET("/visits/expired", visitCtrl.GetExpired)
	g.GET("/visits/:visit_id/identity", visitCtrl.GetIdentity)
	g.POST("/visits/:visit_id/time-out", visitCtrl.TimeOut)
	g.GET("/notifications", notifCtrl.GetUnread)
	g.PATCH("/notifications/:notif_id/read", notifCtrl.MarkRead)
	g.DELETE("/notifications", notifCtrl.ClearAll)
	g.POST("/notifications/refresh", notifCtrl.Refresh)
	g.GET("/ws/notifications", feedCtrl.Notifications)

	return &apiEnv{
		store:    s,
		hub:      hub,
		policy:   policy,
		monitor:  monitor,
		sessions: sessions,
		changes:  services.NewChangeMonitor(db, hub),
		router:   r,
	}
}

func (e *apiEnv) guard(t *testing.T, name, gate string, active bool) (models.Security, string) {
	t.Helper()
	g := models.Security{Name: name, AssignGate: gate, Active: active, Confirmed: true}
	require.NoError(t, e.store.DB().Create(&g).Error)
	token, err := utils.GenerateToken(g.ID, time.Hour)
	require.NoError(t, err)
	return g, token
}

func (e *apiEnv) visit(t *testing.T, code string, guardID *uint, visitorID *uint, entry time.Time) models.Visit {
	t.Helper()
	v := models.Visit{
		VisitCode:   code,
		VisitorID:   visitorID,
		TimeOfVisit: entry,
		Expiration:  e.policy.ExpirationFor(entry),
		SecurityID:  guardID,
	}
	require.NoError(t, e.store.CreateVisit(context.Background(), &v))
	return v
}

func (e *apiEnv) do(t *testing.T, method, url, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewBuffer(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func ptr(v uint) *uint { return &v }
