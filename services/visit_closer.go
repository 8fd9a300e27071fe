package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

// VisitCloser menjalankan aksi "Time Out" dari petugas. Notifikasi lama
// untuk visit yang sudah ditutup tidak dihapus.
type VisitCloser struct {
	store store.Store
	Now   func() time.Time
}

func NewVisitCloser(s store.Store) *VisitCloser {
	return &VisitCloser{store: s, Now: time.Now}
}

// Close mengisi time_out. Menutup visit yang sudah ditutup tetap sukses.
func (c *VisitCloser) Close(ctx context.Context, visitID uint) error {
	now := c.Now().UTC()
	if err := c.store.UpdateVisitTimeOut(ctx, visitID, now); err != nil {
		utils.ErrorLogger.WithField("visit_id", visitID).Errorf("Error closing visit: %v", err)
		return fmt.Errorf("close visit %d: %w", visitID, err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"visit_id": visitID,
		"time_out": now,
	}).Info("Visit timed out")
	return nil
}
