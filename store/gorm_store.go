package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore mengimplementasikan Store di atas gorm (MySQL atau SQLite)
type GormStore struct {
	db  *gorm.DB
	hub *feed.Hub
}

func NewGormStore(db *gorm.DB, hub *feed.Hub) *GormStore {
	return &GormStore{db: db, hub: hub}
}

// DB -> akses langsung untuk komponen infrastruktur (ChangeMonitor)
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrConstraintViolation)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
}

func (s *GormStore) SelectVisits(ctx context.Context, filter VisitFilter) ([]models.Visit, error) {
	query := s.db.WithContext(ctx).Model(&models.Visit{})

	if filter.SecurityID != nil {
		query = query.Where("security_id = ?", *filter.SecurityID)
	} else if filter.Unassigned {
		query = query.Where("security_id IS NULL")
	}
	if filter.OpenOnly {
		query = query.Where("time_out IS NULL")
	}
	if filter.ExpiredAt != nil {
		query = query.Where("expiration <= ?", filter.ExpiredAt.UTC())
	}
	if filter.NotificationSent != nil {
		query = query.Where("notification_sent = ?", *filter.NotificationSent)
	}

	var visits []models.Visit
	if err := query.Order("id ASC").Find(&visits).Error; err != nil {
		return nil, classify(err, "select visits")
	}
	return visits, nil
}

func (s *GormStore) GetVisit(ctx context.Context, visitID uint) (models.Visit, error) {
	var visit models.Visit
	if err := s.db.WithContext(ctx).First(&visit, visitID).Error; err != nil {
		return models.Visit{}, classify(err, "get visit")
	}
	return visit, nil
}

func (s *GormStore) CreateVisit(ctx context.Context, visit *models.Visit) error {
	visit.TimeOfVisit = visit.TimeOfVisit.UTC()
	visit.Expiration = visit.Expiration.UTC()
	return classify(s.db.WithContext(ctx).Create(visit).Error, "create visit")
}

func (s *GormStore) ListVisitors(ctx context.Context) ([]models.Visitor, error) {
	var visitors []models.Visitor
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&visitors).Error; err != nil {
		return nil, classify(err, "list visitors")
	}
	return visitors, nil
}

// FindOrCreateVisitor -> dedup berdasarkan id_number. Nilai bool true jika
// baris baru dibuat.
func (s *GormStore) FindOrCreateVisitor(ctx context.Context, visitor models.Visitor) (models.Visitor, bool, error) {
	db := s.db.WithContext(ctx)

	candidate := visitor
	candidate.ID = 0
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id_number"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return models.Visitor{}, false, classify(res.Error, "insert visitor")
	}
	if res.RowsAffected == 1 && candidate.ID != 0 {
		return candidate, true, nil
	}

	var existing models.Visitor
	if err := db.Where("id_number = ?", visitor.IDNumber).First(&existing).Error; err != nil {
		return models.Visitor{}, false, classify(err, "find visitor")
	}
	return existing, false, nil
}

func (s *GormStore) GetGuard(ctx context.Context, guardID uint) (models.Security, error) {
	var guard models.Security
	if err := s.db.WithContext(ctx).First(&guard, guardID).Error; err != nil {
		return models.Security{}, classify(err, "get guard")
	}
	return guard, nil
}

func (s *GormStore) ListGuards(ctx context.Context) ([]models.Security, error) {
	var guards []models.Security
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&guards).Error; err != nil {
		return nil, classify(err, "list guards")
	}
	return guards, nil
}

func (s *GormStore) FindNotifications(ctx context.Context, guardID, visitID uint) ([]models.Notification, error) {
	var notifs []models.Notification
	err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"user_id": guardID, "visit_id": visitID}).
		Order("id ASC").
		Find(&notifs).Error
	if err != nil {
		return nil, classify(err, "find notifications")
	}
	return notifs, nil
}

// InsertNotification -> insert atomik; jika pasangan (guard, visit) sudah ada
// mengembalikan ErrConstraintViolation tanpa menulis apa pun.
func (s *GormStore) InsertNotification(ctx context.Context, guardID, visitID uint, content string) (models.Notification, error) {
	notif := models.Notification{
		UserID:  guardID,
		VisitID: visitID,
		Content: content,
		Read:    false,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "visit_id"}},
		DoNothing: true,
	}).Create(&notif)
	if res.Error != nil {
		return models.Notification{}, classify(res.Error, "insert notification")
	}
	if res.RowsAffected == 0 {
		return models.Notification{}, fmt.Errorf("insert notification guard=%d visit=%d: %w", guardID, visitID, ErrConstraintViolation)
	}
	return notif, nil
}

func (s *GormStore) ListUnreadNotifications(ctx context.Context, guardID uint) ([]models.Notification, error) {
	var notifs []models.Notification
	err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"user_id": guardID, "read": false}).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notifs).Error
	if err != nil {
		return nil, classify(err, "list unread notifications")
	}
	return notifs, nil
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, guardID, notificationID uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where(map[string]interface{}{"id": notificationID, "user_id": guardID}).
		Update("read", true)
	if res.Error != nil {
		return classify(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		// sudah dibaca atau bukan milik guard ini
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where(map[string]interface{}{"id": notificationID, "user_id": guardID}).
			Count(&count).Error; err != nil {
			return classify(err, "mark notification read")
		}
		if count == 0 {
			return fmt.Errorf("mark notification read: %w", ErrNotFound)
		}
	}
	return nil
}

// ClearNotifications -> hapus semua notifikasi milik guard
func (s *GormStore) ClearNotifications(ctx context.Context, guardID uint) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ?", guardID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, classify(res.Error, "clear notifications")
	}
	return res.RowsAffected, nil
}

// UpdateVisitFlag -> hanya notification_sent dan hanya false -> true. Jika
// guardID nil, update dibatasi pada visit tanpa security_id.
func (s *GormStore) UpdateVisitFlag(ctx context.Context, visitID uint, guardID *uint, field string, value bool) (int64, error) {
	if field != FieldNotificationSent {
		return 0, fmt.Errorf("update visit flag: unsupported field %q", field)
	}
	if !value {
		return 0, fmt.Errorf("update visit flag: %s cannot be reset", field)
	}

	query := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("id = ?", visitID).
		Where("notification_sent = ?", false)
	if guardID != nil {
		query = query.Where("security_id = ?", *guardID)
	} else {
		query = query.Where("security_id IS NULL")
	}

	res := query.Update(field, value)
	if res.Error != nil {
		return 0, classify(res.Error, "update visit flag")
	}
	return res.RowsAffected, nil
}

// UpdateVisitTimeOut -> time_out hanya ditulis sekali; visit yang sudah
// ditutup dianggap sukses tanpa perubahan.
func (s *GormStore) UpdateVisitTimeOut(ctx context.Context, visitID uint, ts time.Time) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Visit{}).
		Where("id = ? AND time_out IS NULL", visitID).
		Update("time_out", ts.UTC())
	if res.Error != nil {
		return classify(res.Error, "update visit time out")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.Visit{}).Where("id = ?", visitID).Count(&count).Error; err != nil {
		return classify(err, "update visit time out")
	}
	if count == 0 {
		return fmt.Errorf("update visit time out: visit %d: %w", visitID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) Subscribe(ctx context.Context, table string, guardID uint) (*feed.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.hub == nil {
		return nil, fmt.Errorf("subscribe %s: %w: no change feed", table, ErrUnavailable)
	}
	return s.hub.Subscribe(table, guardID), nil
}
