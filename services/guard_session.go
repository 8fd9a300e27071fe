package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

var ErrSessionClosed = errors.New("guard session closed")

// SessionConfig -> dependensi eksplisit untuk satu sesi guard
type SessionConfig struct {
	GuardID        uint
	Store          store.Store
	Monitor        *ExpirationMonitor
	Interval       time.Duration
	ReconnectDelay time.Duration

	OnSnapshot func(items []models.Notification)
	OnEvent    func(ev feed.Event, unread int)
	OnAlert    func(n models.Notification)
	OnFailure  func(err error)
	OnCycle    func(report CycleReport, err error)
}

// GuardSession memiliki timer evaluator dan langganan change feed untuk
// satu guard. Keduanya dihentikan oleh Close.
type GuardSession struct {
	ID       string
	GuardID  uint
	Live     *LiveNotifications
	monitor  *ExpirationMonitor
	interval time.Duration
	onCycle  func(report CycleReport, err error)

	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// OpenGuardSession langsung menjalankan satu siklus (screen entry), lalu
// setiap Interval.
func OpenGuardSession(ctx context.Context, cfg SessionConfig) (*GuardSession, error) {
	if cfg.Store == nil || cfg.Monitor == nil {
		return nil, errors.New("guard session requires store and monitor")
	}
	if cfg.GuardID == 0 {
		return nil, ErrNoGuard
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	live := NewLiveNotifications(cfg.GuardID, cfg.Store, cfg.ReconnectDelay)
	live.OnSnapshot = cfg.OnSnapshot
	live.OnEvent = cfg.OnEvent
	live.OnAlert = cfg.OnAlert
	live.OnFailure = cfg.OnFailure

	sessCtx, cancel := context.WithCancel(ctx)
	s := &GuardSession{
		ID:       uuid.NewString(),
		GuardID:  cfg.GuardID,
		Live:     live,
		monitor:  cfg.Monitor,
		interval: cfg.Interval,
		onCycle:  cfg.OnCycle,
		ctx:      sessCtx,
		cancel:   cancel,
		trigger:  make(chan struct{}, 1),
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		_ = live.Run(sessCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	s.Trigger()
	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"guard_id":   s.GuardID,
	}).Info("Guard session opened")
	return s, nil
}

// Trigger meminta siklus evaluator segera (pull-to-refresh). Permintaan
// yang menumpuk digabung.
func (s *GuardSession) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunNow menjalankan siklus secara sinkron dan mengembalikan laporannya
func (s *GuardSession) RunNow(ctx context.Context) (CycleReport, error) {
	if s.ctx.Err() != nil {
		return CycleReport{GuardID: s.GuardID}, ErrSessionClosed
	}
	return s.monitor.RunCycle(ctx, s.GuardID)
}

func (s *GuardSession) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		case <-s.trigger:
			s.runCycle()
		}
	}
}

// runCycle -> dispatch yang sedang berjalan tidak dibatalkan oleh Close
func (s *GuardSession) runCycle() {
	report, err := s.monitor.RunCycle(context.WithoutCancel(s.ctx), s.GuardID)
	if errors.Is(err, ErrCycleInProgress) {
		return
	}
	if s.ctx.Err() != nil {
		// sesi sudah ditutup; hasil dibuang
		return
	}
	if s.onCycle != nil {
		s.onCycle(report, err)
	}
}

// Close menghentikan timer dan langganan feed. Aman dipanggil berulang.
func (s *GuardSession) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		utils.InfoLogger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"guard_id":   s.GuardID,
		}).Info("Guard session closed")
	})
	return nil
}

func (s *GuardSession) Done() <-chan struct{} {
	return s.ctx.Done()
}

// SessionRegistry mencatat sesi aktif per guard
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*GuardSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*GuardSession)}
}

func (r *SessionRegistry) Add(s *GuardSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ForGuard -> sesi aktif milik guard
func (r *SessionRegistry) ForGuard(guardID uint) []*GuardSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*GuardSession
	for _, s := range r.sessions {
		if s.GuardID == guardID {
			out = append(out, s)
		}
	}
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll dipakai saat shutdown
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*GuardSession, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
