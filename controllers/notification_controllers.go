package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

type NotificationController struct {
	Store    store.Store
	Monitor  *services.ExpirationMonitor
	Sessions *services.SessionRegistry
}

func NewNotificationController(s store.Store, monitor *services.ExpirationMonitor, sessions *services.SessionRegistry) *NotificationController {
	return &NotificationController{Store: s, Monitor: monitor, Sessions: sessions}
}

// GetUnread -> notifikasi belum dibaca, terbaru di depan
func (nc *NotificationController) GetUnread(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}

	notifs, err := nc.Store.ListUnreadNotifications(c.Request.Context(), guardID)
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load notifications", err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Unread notifications", gin.H{
		"unread":        len(notifs),
		"notifications": notifs,
	})
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}
	notifID, ok := paramID(c, "notif_id")
	if !ok {
		return
	}

	err := nc.Store.MarkNotificationRead(c.Request.Context(), guardID, notifID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to update notification", err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification marked as read", gin.H{"notif_id": notifID})
}

// ClearAll -> hapus semua notifikasi guard; tidak mengubah flag visit
func (nc *NotificationController) ClearAll(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}

	n, err := nc.Store.ClearNotifications(c.Request.Context(), guardID)
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to clear notifications", err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications cleared", gin.H{"deleted": n})
}

// Refresh -> pull-to-refresh, menjalankan siklus evaluator sekarang juga
func (nc *NotificationController) Refresh(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}

	report, err := nc.Monitor.RunCycle(c.Request.Context(), guardID)
	if errors.Is(err, services.ErrCycleInProgress) {
		utils.RespondJSON(c, http.StatusAccepted, "Expiration check already running", report)
		return
	}
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to check expired visits", err)
		return
	}

	sessions := 0
	if nc.Sessions != nil {
		sessions = len(nc.Sessions.ForGuard(guardID))
	}
	utils.RespondJSON(c, http.StatusOK, "Expiration check completed", gin.H{
		"report":   report,
		"sessions": sessions,
	})
}
