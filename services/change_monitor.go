package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
	"gorm.io/gorm"
)

// ChangeMonitor membaca db_changes (diisi trigger) yang belum diproses,
// menyiarkannya ke hub, lalu menandainya processed.
type ChangeMonitor struct {
	DB        *gorm.DB
	Hub       *feed.Hub
	Interval  time.Duration
	Retention time.Duration
	BatchSize int

	mu       sync.Mutex
	cursor   uint
	started  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewChangeMonitor(db *gorm.DB, hub *feed.Hub) *ChangeMonitor {
	return &ChangeMonitor{
		DB:        db,
		Hub:       hub,
		Interval:  500 * time.Millisecond,
		Retention: time.Hour,
		BatchSize: 100,
	}
}

// Cursor -> ID tertinggi yang sudah disiarkan
func (cm *ChangeMonitor) Cursor() uint {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.cursor
}

// SkipBacklog -> mulai dari perubahan terbaru; riwayat lama tidak diputar ulang
func (cm *ChangeMonitor) SkipBacklog(ctx context.Context) error {
	var last struct{ MaxID uint }
	if err := cm.DB.WithContext(ctx).Model(&models.DBChange{}).
		Select("COALESCE(MAX(id), 0) AS max_id").
		Scan(&last).Error; err != nil {
		return err
	}
	res := cm.DB.WithContext(ctx).Model(&models.DBChange{}).
		Where("processed = ? AND id <= ?", false, last.MaxID).
		Update("processed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		utils.InfoLogger.Printf("Skipped %d pending db_changes rows", res.RowsAffected)
	}

	cm.mu.Lock()
	cm.cursor = last.MaxID
	cm.mu.Unlock()
	return nil
}

func (cm *ChangeMonitor) Start(ctx context.Context) error {
	cm.mu.Lock()
	if cm.started {
		cm.mu.Unlock()
		return errors.New("change monitor already started")
	}
	cm.started = true
	cm.stopChan = make(chan struct{})
	cm.doneChan = make(chan struct{})
	cm.mu.Unlock()

	if err := cm.SkipBacklog(ctx); err != nil {
		utils.ErrorLogger.Errorf("Error reading change cursor: %v", err)
	}

	go func() {
		defer close(cm.doneChan)
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		polls := 0
		for {
			select {
			case <-ticker.C:
				if _, err := cm.Poll(ctx); err != nil {
					utils.ErrorLogger.Errorf("Error polling changes: %v", err)
				}
				polls++
				if polls%120 == 0 {
					cm.Prune(ctx)
				}
			case <-cm.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (cm *ChangeMonitor) Stop() {
	cm.mu.Lock()
	if !cm.started {
		cm.mu.Unlock()
		return
	}
	cm.started = false
	stop, done := cm.stopChan, cm.doneChan
	cm.mu.Unlock()

	close(stop)
	<-done
}

// Poll memproses satu batch perubahan yang belum diproses dan mengembalikan
// jumlahnya. Baris yang commit terlambat dengan ID lebih kecil tetap terambil.
func (cm *ChangeMonitor) Poll(ctx context.Context) (int, error) {
	var changes []models.DBChange
	if err := cm.DB.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Limit(cm.batchSize()).
		Find(&changes).Error; err != nil {
		return 0, err
	}

	processed := 0
	for _, change := range changes {
		switch change.Table {
		case store.TableNotifications:
			if err := cm.processNotificationChange(ctx, change); err != nil {
				// berhenti di sini; perubahan ini diulang pada poll berikutnya
				return processed, err
			}
		}

		// Mark sebagai processed. Kalau gagal, event bisa terkirim ulang;
		// consumer membuang Seq yang sudah pernah diterapkan.
		if err := cm.DB.WithContext(ctx).Model(&models.DBChange{}).
			Where("id = ?", change.ID).
			Update("processed", true).Error; err != nil {
			return processed, err
		}
		processed++

		cm.mu.Lock()
		if change.ID > cm.cursor {
			cm.cursor = change.ID
		}
		cm.mu.Unlock()
	}

	return processed, nil
}

func (cm *ChangeMonitor) processNotificationChange(ctx context.Context, change models.DBChange) error {
	ev := feed.Event{
		Seq:    change.ID,
		Table:  change.Table,
		Action: change.ActionType,
	}

	if change.ActionType == models.ActionDelete {
		ev.Notification = models.Notification{ID: change.RecordID}
		if change.ScopeID != nil {
			ev.Notification.UserID = *change.ScopeID
		}
	} else {
		var notif models.Notification
		err := cm.DB.WithContext(ctx).First(&notif, change.RecordID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// sudah dihapus; event DELETE menyusul
			return nil
		}
		if err != nil {
			return err
		}
		ev.Notification = notif
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"seq":             ev.Seq,
		"action":          ev.Action,
		"guard_id":        ev.Notification.UserID,
		"notification_id": ev.Notification.ID,
	}).Debug("Broadcasting notification change")
	cm.Hub.Publish(ev)
	return nil
}

// Prune menghapus perubahan yang sudah disiarkan dan melewati retensi
func (cm *ChangeMonitor) Prune(ctx context.Context) {
	if cm.Retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-cm.Retention)
	res := cm.DB.WithContext(ctx).
		Where("processed = ? AND changed_at < ?", true, cutoff).
		Delete(&models.DBChange{})
	if res.Error != nil {
		utils.ErrorLogger.Errorf("Error pruning db_changes: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		utils.InfoLogger.Printf("Pruned %d old db_changes rows", res.RowsAffected)
	}
}

func (cm *ChangeMonitor) batchSize() int {
	if cm.BatchSize <= 0 {
		return 100
	}
	return cm.BatchSize
}
