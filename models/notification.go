package models

import (
	"time"
)

// Notification untuk petugas jaga. Pasangan (UserID, VisitID) unik: satu
// visit paling banyak punya satu notifikasi tersimpan per petugas.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_notifications_guard_visit,priority:1" json:"user_id"`
	VisitID   uint      `gorm:"not null;uniqueIndex:idx_notifications_guard_visit,priority:2" json:"visit_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
