package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

var (
	// ErrInconsistent -> notifikasi tersimpan tetapi flag visit gagal diubah
	ErrInconsistent = errors.New("notification stored but visit flag not set")
	// ErrNoGuard -> visit tidak punya target petugas
	ErrNoGuard = errors.New("visit has no responsible guard")
)

type DispatchOutcome string

const (
	DispatchSent        DispatchOutcome = "success"
	DispatchAlreadySent DispatchOutcome = "already_sent"
	DispatchFailed      DispatchOutcome = "failure"
)

type DispatchResult struct {
	Outcome      DispatchOutcome
	GuardID      uint
	Notification models.Notification
}

// Dispatcher menjamin paling banyak satu notifikasi tersimpan per
// (guard, visit). Keunikan ditegakkan oleh unique index di store.
type Dispatcher struct {
	store  store.Store
	policy ExpirationPolicy
}

func NewDispatcher(s store.Store, policy ExpirationPolicy) *Dispatcher {
	return &Dispatcher{store: s, policy: policy}
}

// Dispatch mengirim ke petugas yang tercatat di visit
func (d *Dispatcher) Dispatch(ctx context.Context, visit models.Visit) (DispatchResult, error) {
	if visit.SecurityID == nil {
		return DispatchResult{Outcome: DispatchFailed}, fmt.Errorf("dispatch %s: %w", visit.VisitCode, ErrNoGuard)
	}
	return d.DispatchTo(ctx, visit, *visit.SecurityID)
}

// DispatchTo mengirim ke guardID. Untuk visit tanpa security_id, guardID
// adalah hasil rotasi gerbang dan flag di-update pada baris security_id IS NULL.
func (d *Dispatcher) DispatchTo(ctx context.Context, visit models.Visit, guardID uint) (DispatchResult, error) {
	log := utils.InfoLogger.WithFields(logrus.Fields{
		"guard_id":   guardID,
		"visit_id":   visit.ID,
		"visit_code": visit.VisitCode,
	})
	result := DispatchResult{GuardID: guardID}

	// 1. cek yang sudah ada
	existing, err := d.store.FindNotifications(ctx, guardID, visit.ID)
	if err != nil {
		result.Outcome = DispatchFailed
		return result, fmt.Errorf("dispatch %s: %w", visit.VisitCode, err)
	}
	if len(existing) > 0 {
		result.Outcome = DispatchAlreadySent
		result.Notification = existing[0]
		d.repairFlag(ctx, visit, log)
		return result, nil
	}

	// 2. insert atomik
	notif, err := d.store.InsertNotification(ctx, guardID, visit.ID, d.Content(visit))
	if errors.Is(err, store.ErrConstraintViolation) {
		log.Info("Notification already stored by a concurrent dispatch")
		result.Outcome = DispatchAlreadySent
		d.repairFlag(ctx, visit, log)
		return result, nil
	}
	if err != nil {
		result.Outcome = DispatchFailed
		return result, fmt.Errorf("dispatch %s: %w", visit.VisitCode, err)
	}
	result.Outcome = DispatchSent
	result.Notification = notif

	// 3. flag visit
	if _, err := d.store.UpdateVisitFlag(ctx, visit.ID, visit.SecurityID, store.FieldNotificationSent, true); err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"guard_id":        guardID,
			"visit_id":        visit.ID,
			"visit_code":      visit.VisitCode,
			"notification_id": notif.ID,
		}).Errorf("INCONSISTENT: notification stored but notification_sent not set: %v", err)
		return result, fmt.Errorf("dispatch %s: %w: %v", visit.VisitCode, ErrInconsistent, err)
	}

	log.WithField("notification_id", notif.ID).Info("Expiration notification dispatched")
	return result, nil
}

// Content -> harus memuat visit code dan waktu expiration yang bisa dibaca
func (d *Dispatcher) Content(visit models.Visit) string {
	return fmt.Sprintf("Visit %s has passed its expiration at %s without a time-out.",
		visit.VisitCode, d.policy.Local(visit.Expiration).Format("Jan 2, 2006 15:04"))
}

// repairFlag -> deteksi notifikasi yang sudah ada menjadi no-op, sekaligus
// memperbaiki flag yang tertinggal dari siklus sebelumnya
func (d *Dispatcher) repairFlag(ctx context.Context, visit models.Visit, log *logrus.Entry) {
	if visit.NotificationSent {
		return
	}
	n, err := d.store.UpdateVisitFlag(ctx, visit.ID, visit.SecurityID, store.FieldNotificationSent, true)
	if err != nil {
		log.Warnf("Could not repair notification_sent flag: %v", err)
		return
	}
	if n > 0 {
		log.Info("Repaired notification_sent flag for already-notified visit")
	}
}
