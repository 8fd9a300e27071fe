package store

import (
	"context"
	"errors"
	"time"

	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
)

const (
	TableNotifications = "notifications"

	FieldNotificationSent = "notification_sent"
)

var (
	// ErrNotFound -> baris tidak ditemukan
	ErrNotFound = errors.New("store: record not found")
	// ErrConstraintViolation -> notifikasi untuk (guard, visit) sudah ada
	ErrConstraintViolation = errors.New("store: constraint violation")
	// ErrUnavailable -> store tidak bisa dihubungi atau query gagal (TransientIO)
	ErrUnavailable = errors.New("store: unavailable")
)

// VisitFilter -> predikat untuk SelectVisits. Field nil berarti tidak difilter.
type VisitFilter struct {
	SecurityID       *uint
	Unassigned       bool // security_id IS NULL
	OpenOnly         bool // time_out IS NULL
	ExpiredAt        *time.Time
	NotificationSent *bool
}

// Store adalah kapabilitas query/mutasi/subscribe yang dipakai engine
type Store interface {
	SelectVisits(ctx context.Context, filter VisitFilter) ([]models.Visit, error)
	GetVisit(ctx context.Context, visitID uint) (models.Visit, error)
	CreateVisit(ctx context.Context, visit *models.Visit) error

	ListVisitors(ctx context.Context) ([]models.Visitor, error)
	FindOrCreateVisitor(ctx context.Context, visitor models.Visitor) (models.Visitor, bool, error)

	GetGuard(ctx context.Context, guardID uint) (models.Security, error)
	ListGuards(ctx context.Context) ([]models.Security, error)

	FindNotifications(ctx context.Context, guardID, visitID uint) ([]models.Notification, error)
	InsertNotification(ctx context.Context, guardID, visitID uint, content string) (models.Notification, error)
	ListUnreadNotifications(ctx context.Context, guardID uint) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, guardID, notificationID uint) error
	ClearNotifications(ctx context.Context, guardID uint) (int64, error)

	UpdateVisitFlag(ctx context.Context, visitID uint, guardID *uint, field string, value bool) (int64, error)
	UpdateVisitTimeOut(ctx context.Context, visitID uint, ts time.Time) error

	Subscribe(ctx context.Context, table string, guardID uint) (*feed.Subscription, error)
}
