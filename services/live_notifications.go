package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

type FeedState string

const (
	FeedStateLoading FeedState = "loading"
	FeedStateReady   FeedState = "ready"
	FeedStateFailed  FeedState = "failed"
)

// NotificationSource -> bagian Store yang dibutuhkan change feed consumer
type NotificationSource interface {
	ListUnreadNotifications(ctx context.Context, guardID uint) ([]models.Notification, error)
	Subscribe(ctx context.Context, table string, guardID uint) (*feed.Subscription, error)
}

// LiveNotifications menyimpan daftar notifikasi belum dibaca milik satu guard
// (terbaru di depan) dan menjaganya tetap sinkron lewat change feed.
type LiveNotifications struct {
	guardID        uint
	source         NotificationSource
	reconnectDelay time.Duration

	// Callback dipanggil dari goroutine Run secara berurutan
	OnSnapshot func(items []models.Notification)
	OnEvent    func(ev feed.Event, unread int)
	OnAlert    func(n models.Notification)
	OnFailure  func(err error)

	mu    sync.RWMutex
	items []models.Notification
	state FeedState
	seen  map[uint]struct{}
	top   uint
}

// jumlah Seq terakhir yang diingat untuk membuang event ganda
const seenWindow = 1024

func NewLiveNotifications(guardID uint, source NotificationSource, reconnectDelay time.Duration) *LiveNotifications {
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	return &LiveNotifications{
		guardID:        guardID,
		source:         source,
		reconnectDelay: reconnectDelay,
		state:          FeedStateLoading,
		seen:           make(map[uint]struct{}),
	}
}

// Snapshot -> salinan daftar unread, terbaru di depan
func (l *LiveNotifications) Snapshot() []models.Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Notification, len(l.items))
	copy(out, l.items)
	return out
}

func (l *LiveNotifications) UnreadCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *LiveNotifications) State() FeedState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// fail -> state gagal dan beri tahu tampilan; detail error hanya di log
func (l *LiveNotifications) fail(err error) {
	l.mu.Lock()
	l.state = FeedStateFailed
	l.mu.Unlock()

	utils.ErrorLogger.WithField("guard_id", l.guardID).Errorf("Failed to load notifications: %v", err)
	if l.OnFailure != nil {
		l.OnFailure(err)
	}
}

// Refresh mengganti seluruh daftar dengan hasil query otoritatif
func (l *LiveNotifications) Refresh(ctx context.Context) error {
	items, err := l.source.ListUnreadNotifications(ctx, l.guardID)
	if err != nil {
		if ctx.Err() == nil {
			l.fail(err)
		}
		return err
	}

	l.mu.Lock()
	l.items = items
	l.state = FeedStateReady
	l.mu.Unlock()

	if l.OnSnapshot != nil {
		l.OnSnapshot(l.Snapshot())
	}
	return nil
}

// Apply menerapkan satu event. Mengembalikan true jika daftar berubah.
func (l *LiveNotifications) Apply(ev feed.Event) bool {
	n := ev.Notification
	if ev.Table != store.TableNotifications || n.UserID != l.guardID {
		return false
	}

	l.mu.Lock()
	if ev.Seq != 0 && !l.markSeen(ev.Seq) {
		l.mu.Unlock()
		return false
	}

	idx := l.indexOf(n.ID)
	changed := false
	alert := false

	switch ev.Action {
	case feed.ActionInsert:
		switch {
		case n.Read:
			changed = l.removeAt(idx)
		case idx >= 0:
			l.items[idx] = n
			changed = true
		default:
			l.items = append([]models.Notification{n}, l.items...)
			changed = true
			alert = true
		}
	case feed.ActionUpdate:
		switch {
		case n.Read:
			// tampilan selalu dari subset unread, jadi yang sudah dibaca dibuang
			changed = l.removeAt(idx)
		case idx >= 0:
			l.items[idx] = n
			changed = true
		default:
			l.insertOrdered(n)
			changed = true
		}
	case feed.ActionDelete:
		changed = l.removeAt(idx)
	}
	unread := len(l.items)
	l.mu.Unlock()

	if changed && l.OnEvent != nil {
		l.OnEvent(ev, unread)
	}
	if alert && l.OnAlert != nil {
		l.OnAlert(n)
	}
	return changed
}

// markSeen -> false kalau Seq sudah pernah diterapkan. Event boleh tiba
// tidak berurutan karena setiap event membawa isi baris terkini.
func (l *LiveNotifications) markSeen(seq uint) bool {
	if _, ok := l.seen[seq]; ok {
		return false
	}
	if l.top > seenWindow && seq <= l.top-seenWindow {
		// terlalu lama untuk dilacak
		return false
	}
	l.seen[seq] = struct{}{}
	if seq > l.top {
		l.top = seq
	}
	if len(l.seen) > 2*seenWindow {
		for s := range l.seen {
			if l.top > seenWindow && s <= l.top-seenWindow {
				delete(l.seen, s)
			}
		}
	}
	return true
}

func (l *LiveNotifications) indexOf(id uint) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l *LiveNotifications) removeAt(idx int) bool {
	if idx < 0 {
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return true
}

func (l *LiveNotifications) insertOrdered(n models.Notification) {
	pos := sort.Search(len(l.items), func(i int) bool {
		it := l.items[i]
		if it.CreatedAt.Equal(n.CreatedAt) {
			return it.ID < n.ID
		}
		return it.CreatedAt.Before(n.CreatedAt)
	})
	l.items = append(l.items, models.Notification{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = n
}

// Run berlangganan change feed dan menerapkan event sampai ctx selesai.
// Setiap (re)koneksi diikuti full refresh sebelum event dipercaya.
func (l *LiveNotifications) Run(ctx context.Context) error {
	log := utils.InfoLogger.WithField("guard_id", l.guardID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithFields(logrus.Fields{"reason": err}).Warn("Notification feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *LiveNotifications) runOnce(ctx context.Context) error {
	sub, err := l.source.Subscribe(ctx, store.TableNotifications, l.guardID)
	if err != nil {
		if ctx.Err() == nil {
			l.fail(err)
		}
		return err
	}
	defer sub.Close()

	l.mu.Lock()
	l.seen = make(map[uint]struct{})
	l.top = 0
	l.mu.Unlock()

	// subscribe dulu baru refresh supaya tidak ada celah
	if err := l.Refresh(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Err()
			}
			l.Apply(ev)
		}
	}
}
