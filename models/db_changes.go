package models

import (
	"time"
)

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// DBChange diisi oleh trigger database. ID dipakai sebagai nomor urut feed,
// tapi urutan commit bisa berbeda dari urutan ID; Processed yang menandai
// baris sudah disiarkan.
type DBChange struct {
	ID         uint      `gorm:"primaryKey"`
	Table      string    `gorm:"column:table_name;type:varchar(50);not null;index:idx_table_action"`
	RecordID   uint      `gorm:"not null"`
	ScopeID    *uint     `gorm:"index"`
	ActionType string    `gorm:"type:varchar(10);not null;index:idx_table_action"`
	ChangedAt  time.Time `gorm:"not null;index"`
	Processed  bool      `gorm:"default:false;index:idx_processed"`
}

func (DBChange) TableName() string {
	return "db_changes"
}
