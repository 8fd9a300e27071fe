package database

import (
	"fmt"

	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/utils"
	"gorm.io/gorm"
)

// Migrate -> AutoMigrate semua tabel lalu pasang trigger change feed
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Visitor{},
		&models.Security{},
		&models.Visit{},
		&models.Notification{},
		&models.DBChange{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")

	if err := ExecuteTriggers(db); err != nil {
		return fmt.Errorf("setup triggers: %w", err)
	}
	return nil
}
