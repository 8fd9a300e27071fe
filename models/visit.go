package models

import (
	"time"
)

// Visit merepresentasikan satu kali masuk lewat gerbang kampus.
//
// TimeOut hanya diisi sekali oleh proses time-out; NotificationSent hanya
// berpindah dari false ke true.
type Visit struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	VisitCode        string     `gorm:"type:varchar(20);uniqueIndex;not null" json:"visit_code"`
	VisitorID        *uint      `gorm:"index" json:"visitor_id,omitempty"` // tidak dijamin valid
	Purpose          string     `gorm:"type:text" json:"purpose"`
	TimeOfVisit      time.Time  `gorm:"not null" json:"time_of_visit"`
	Expiration       time.Time  `gorm:"not null;index:idx_visits_expiry,priority:3" json:"expiration"`
	TimeOut          *time.Time `gorm:"index:idx_visits_expiry,priority:2" json:"time_out,omitempty"`
	NotificationSent bool       `gorm:"not null;default:false;index:idx_visits_expiry,priority:4" json:"notification_sent"`
	SecurityID       *uint      `gorm:"index:idx_visits_expiry,priority:1" json:"security_id,omitempty"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
}

// IsClosed -> visit sudah di time-out
func (v Visit) IsClosed() bool {
	return v.TimeOut != nil
}
