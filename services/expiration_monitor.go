package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

// ErrCycleInProgress -> siklus untuk guard yang sama masih berjalan
var ErrCycleInProgress = errors.New("expiration cycle already running for guard")

// CycleReport merangkum satu siklus evaluator
type CycleReport struct {
	GuardID      uint `json:"guard_id"`
	Evaluated    int  `json:"evaluated"`
	Sent         int  `json:"sent"`
	AlreadySent  int  `json:"already_sent"`
	Failed       int  `json:"failed"`
	Inconsistent int  `json:"inconsistent"`
}

// ExpiredVisit -> visit expired beserta statusnya
type ExpiredVisit struct {
	Visit  models.Visit `json:"visit"`
	Status VisitStatus  `json:"status"`
}

// ExpirationMonitor menjalankan siklus evaluator per guard: cari visit yang
// expired dan belum dinotifikasi, lalu dispatch satu per satu.
type ExpirationMonitor struct {
	store      store.Store
	dispatcher *Dispatcher
	correlator *Correlator
	policy     ExpirationPolicy
	Now        func() time.Time

	mu       sync.Mutex
	inflight map[uint]bool
}

func NewExpirationMonitor(s store.Store, dispatcher *Dispatcher, correlator *Correlator, policy ExpirationPolicy) *ExpirationMonitor {
	return &ExpirationMonitor{
		store:      s,
		dispatcher: dispatcher,
		correlator: correlator,
		policy:     policy,
		Now:        time.Now,
		inflight:   make(map[uint]bool),
	}
}

func (m *ExpirationMonitor) acquire(guardID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[guardID] {
		return false
	}
	m.inflight[guardID] = true
	return true
}

func (m *ExpirationMonitor) release(guardID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, guardID)
}

// RunCycle -> kegagalan satu visit tidak menghentikan visit lainnya. Error
// hanya dikembalikan jika siklus tidak bisa dimulai (query gagal, overlap).
func (m *ExpirationMonitor) RunCycle(ctx context.Context, guardID uint) (CycleReport, error) {
	report := CycleReport{GuardID: guardID}
	if !m.acquire(guardID) {
		return report, ErrCycleInProgress
	}
	defer m.release(guardID)

	log := utils.InfoLogger.WithField("guard_id", guardID)

	visits, err := m.PendingVisits(ctx, guardID)
	if err != nil {
		utils.ErrorLogger.WithField("guard_id", guardID).Errorf("Expiration cycle skipped: %v", err)
		return report, err
	}

	for _, visit := range visits {
		report.Evaluated++
		result, err := m.dispatcher.DispatchTo(ctx, visit, guardID)
		switch {
		case errors.Is(err, ErrInconsistent):
			report.Sent++
			report.Inconsistent++
		case err != nil:
			report.Failed++
			utils.ErrorLogger.WithFields(logrus.Fields{
				"guard_id":   guardID,
				"visit_id":   visit.ID,
				"visit_code": visit.VisitCode,
			}).Errorf("Dispatch failed: %v", err)
		case result.Outcome == DispatchSent:
			report.Sent++
		case result.Outcome == DispatchAlreadySent:
			report.AlreadySent++
		}
	}

	if report.Evaluated > 0 {
		log.WithFields(logrus.Fields{
			"evaluated":    report.Evaluated,
			"sent":         report.Sent,
			"already_sent": report.AlreadySent,
			"failed":       report.Failed,
		}).Info("Expiration cycle completed")
	}
	return report, nil
}

// PendingVisits -> visit expired_unacknowledged yang menjadi tanggung jawab
// guard: yang di-assign langsung, ditambah visit tanpa security_id yang
// jatuh ke gerbang guard ini menurut rotasi.
func (m *ExpirationMonitor) PendingVisits(ctx context.Context, guardID uint) ([]models.Visit, error) {
	sent := false
	return m.responsibleVisits(ctx, guardID, &sent)
}

// ExpiredVisits -> semua visit expired yang masih terbuka (sudah atau belum
// dinotifikasi)
func (m *ExpirationMonitor) ExpiredVisits(ctx context.Context, guardID uint) ([]ExpiredVisit, error) {
	visits, err := m.responsibleVisits(ctx, guardID, nil)
	if err != nil {
		return nil, err
	}
	now := m.Now()
	out := make([]ExpiredVisit, 0, len(visits))
	for _, v := range visits {
		out = append(out, ExpiredVisit{Visit: v, Status: m.policy.Classify(now, v)})
	}
	return out, nil
}

func (m *ExpirationMonitor) responsibleVisits(ctx context.Context, guardID uint, sent *bool) ([]models.Visit, error) {
	now := m.Now().UTC()

	assigned, err := m.store.SelectVisits(ctx, store.VisitFilter{
		SecurityID:       &guardID,
		OpenOnly:         true,
		ExpiredAt:        &now,
		NotificationSent: sent,
	})
	if err != nil {
		return nil, fmt.Errorf("select assigned visits: %w", err)
	}

	unassigned, err := m.store.SelectVisits(ctx, store.VisitFilter{
		Unassigned:       true,
		OpenOnly:         true,
		ExpiredAt:        &now,
		NotificationSent: sent,
	})
	if err != nil {
		return nil, fmt.Errorf("select unassigned visits: %w", err)
	}
	if len(unassigned) == 0 {
		return assigned, nil
	}

	guards, err := m.store.ListGuards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list guards: %w", err)
	}

	visits := assigned
	for _, v := range unassigned {
		gate, ok := m.correlator.GateAssigner().AssignGate(v)
		if !ok {
			continue
		}
		if g, ok := GuardForGate(gate, guards); ok && g.ID == guardID {
			visits = append(visits, v)
		}
	}
	return visits, nil
}
