package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

// Event types
const (
	EventSnapshot = "snapshot"
	EventInsert   = "insert"
	EventUpdate   = "update"
	EventDelete   = "delete"
	EventAlert    = "alert"
	EventCycle    = "cycle"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type changeData struct {
	Seq          uint                `json:"seq"`
	Notification models.Notification `json:"notification"`
	Unread       int                 `json:"unread"`
}

// FeedController membuka GuardSession untuk setiap koneksi websocket.
// Satu layar guard = satu sesi; sesi ditutup saat koneksi putus.
type FeedController struct {
	Store          store.Store
	Monitor        *services.ExpirationMonitor
	Sessions       *services.SessionRegistry
	Interval       time.Duration
	ReconnectDelay time.Duration

	upgrader websocket.Upgrader
}

func NewFeedController(s store.Store, monitor *services.ExpirationMonitor, sessions *services.SessionRegistry,
	interval, reconnectDelay time.Duration, allowedOrigin string) *FeedController {
	return &FeedController{
		Store:          s,
		Monitor:        monitor,
		Sessions:       sessions,
		Interval:       interval,
		ReconnectDelay: reconnectDelay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

func actionEvent(action string) string {
	switch action {
	case feed.ActionInsert:
		return EventInsert
	case feed.ActionDelete:
		return EventDelete
	default:
		return EventUpdate
	}
}

// Notifications -> endpoint WebSocket
func (fc *FeedController) Notifications(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}

	ws, err := fc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.WithField("guard_id", guardID).Errorf("Websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	out := make(chan Message, 64)
	done := make(chan struct{})
	send := func(m Message) {
		select {
		case out <- m:
		case <-done:
		}
	}

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		fc.writeLoop(ws, out)
	}()

	// umur sesi mengikuti koneksi, bukan request
	sess, err := services.OpenGuardSession(context.Background(), services.SessionConfig{
		GuardID:        guardID,
		Store:          fc.Store,
		Monitor:        fc.Monitor,
		Interval:       fc.Interval,
		ReconnectDelay: fc.ReconnectDelay,
		OnSnapshot: func(items []models.Notification) {
			send(Message{Event: EventSnapshot, Data: gin.H{"unread": len(items), "notifications": items}})
		},
		OnEvent: func(ev feed.Event, unread int) {
			send(Message{Event: actionEvent(ev.Action), Data: changeData{Seq: ev.Seq, Notification: ev.Notification, Unread: unread}})
		},
		OnAlert: func(n models.Notification) {
			send(Message{Event: EventAlert, Data: n})
		},
		OnFailure: func(error) {
			send(Message{Event: EventSnapshot, Data: gin.H{"error": "failed to load notifications"}})
		},
		OnCycle: func(report services.CycleReport, err error) {
			if err != nil {
				// pesan generik saja, detail ada di log
				send(Message{Event: EventCycle, Data: gin.H{"error": "failed to check expired visits"}})
				return
			}
			send(Message{Event: EventCycle, Data: report})
		},
	})
	if err != nil {
		close(done)
		close(out)
		writer.Wait()
		utils.ErrorLogger.WithField("guard_id", guardID).Errorf("Failed to open guard session: %v", err)
		return
	}
	fc.Sessions.Add(sess)

	// sesi bisa ditutup dari luar (shutdown); lepaskan koneksi juga
	go func() {
		<-sess.Done()
		ws.Close()
	}()

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"guard_id":   guardID,
		"session_id": sess.ID,
	})
	log.Info("Notification feed connected")

	fc.readLoop(ws, sess)

	close(done)
	fc.Sessions.Remove(sess.ID)
	_ = sess.Close()
	close(out)
	writer.Wait()
	log.Info("Notification feed disconnected")
}

// readLoop -> pesan "refresh" dari klien memicu siklus evaluator
func (fc *FeedController) readLoop(ws *websocket.Conn, sess *services.GuardSession) {
	ws.SetReadLimit(1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event == "refresh" {
			sess.Trigger()
		}
	}
}

func (fc *FeedController) writeLoop(ws *websocket.Conn, out <-chan Message) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	failed := false
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				if !failed {
					_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
					_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if failed {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				// readLoop akan ikut berhenti karena koneksi ditutup
				failed = true
				ws.Close()
			}
		case <-ticker.C:
			if failed {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				failed = true
				ws.Close()
			}
		}
	}
}
