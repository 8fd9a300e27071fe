package services

import (
	"time"

	"github.com/yeremiapane/campus-gate/models"
)

// Status visit hasil evaluasi
type VisitStatus string

const (
	VisitStatusOngoing               VisitStatus = "ongoing"
	VisitStatusExpiredUnacknowledged VisitStatus = "expired_unacknowledged"
	VisitStatusExpiredNotified       VisitStatus = "expired_notified"
	VisitStatusCompleted             VisitStatus = "completed"
)

// ExpirationPolicy menghitung batas waktu visit: jam CutoffHour pada tanggal
// lokal kampus (UTC + Offset) saat visitor masuk.
type ExpirationPolicy struct {
	Offset     time.Duration
	CutoffHour int
}

func DefaultExpirationPolicy() ExpirationPolicy {
	return ExpirationPolicy{
		Offset:     8 * time.Hour,
		CutoffHour: 22,
	}
}

// ExpirationFor -> visit yang masuk setelah cutoff mendapat expiration di
// masa lalu (hari yang sama); perilaku ini dipertahankan.
func (p ExpirationPolicy) ExpirationFor(entry time.Time) time.Time {
	local := entry.UTC().Add(p.Offset)
	y, m, d := local.Date()
	cutoff := time.Date(y, m, d, p.CutoffHour, 0, 0, 0, time.UTC)
	return cutoff.Add(-p.Offset)
}

// Local -> waktu dinding kampus, untuk ditampilkan
func (p ExpirationPolicy) Local(t time.Time) time.Time {
	return t.In(time.FixedZone("campus", int(p.Offset/time.Second)))
}

// Classify menentukan tepat satu status untuk visit pada waktu now
func (p ExpirationPolicy) Classify(now time.Time, visit models.Visit) VisitStatus {
	switch {
	case visit.IsClosed():
		return VisitStatusCompleted
	case now.Before(visit.Expiration):
		return VisitStatusOngoing
	case visit.NotificationSent:
		return VisitStatusExpiredNotified
	default:
		return VisitStatusExpiredUnacknowledged
	}
}

// IsExpired -> expired_unacknowledged atau expired_notified
func (p ExpirationPolicy) IsExpired(now time.Time, visit models.Visit) bool {
	status := p.Classify(now, visit)
	return status == VisitStatusExpiredUnacknowledged || status == VisitStatusExpiredNotified
}
