package feed

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/utils"
)

// Action types
const (
	ActionInsert = models.ActionInsert
	ActionUpdate = models.ActionUpdate
	ActionDelete = models.ActionDelete
)

var (
	// ErrLagged -> subscriber terlalu lambat, buffer penuh
	ErrLagged = errors.New("feed: subscriber lagged behind")
	// ErrHubClosed -> hub dimatikan
	ErrHubClosed = errors.New("feed: hub closed")
)

// Event adalah satu perubahan baris. Seq unik per perubahan, tapi urutan
// tibanya tidak dijamin naik.
type Event struct {
	Seq          uint                `json:"seq"`
	Table        string              `json:"table"`
	Action       string              `json:"action"`
	Notification models.Notification `json:"notification"`
}

// Hub menyalurkan event ke subscriber berdasarkan tabel dan scope (guard id)
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe -> handle wajib di-Close oleh pemanggil
func (h *Hub) Subscribe(table string, scopeID uint) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		table:  table,
		scope:  scopeID,
		events: make(chan Event, h.buffer),
	}
	if h.closed {
		sub.terminate(ErrHubClosed)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish mengirim event ke semua subscriber yang cocok, tanpa blocking
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for id, sub := range h.subs {
		if sub.table != ev.Table || sub.scope != ev.Notification.UserID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			utils.ErrorLogger.WithFields(logrus.Fields{
				"table":    sub.table,
				"guard_id": sub.scope,
				"seq":      ev.Seq,
			}).Error("Feed subscriber lagged, disconnecting")
			delete(h.subs, id)
			sub.terminate(ErrLagged)
		}
	}
}

// Subscribers -> jumlah subscriber aktif
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.terminate(ErrHubClosed)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		sub.terminate(nil)
	}
}

// Subscription adalah satu koneksi ke change feed. Channel Events ditutup
// ketika subscription berakhir; Err menjelaskan sebabnya (nil jika Close).
type Subscription struct {
	id     uint64
	hub    *Hub
	table  string
	scope  uint
	events chan Event

	// dijaga oleh hub.mu
	done bool
	err  error
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() error {
	s.hub.remove(s)
	return nil
}

// terminate harus dipanggil dengan hub.mu terkunci
func (s *Subscription) terminate(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.events)
}
