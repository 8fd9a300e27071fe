package database

import (
	"fmt"

	"github.com/yeremiapane/campus-gate/utils"
	"gorm.io/gorm"
)

// Setiap perubahan baris notifications dicatat ke db_changes agar bisa
// dibaca ChangeMonitor, termasuk perubahan dari klien lain.
var sqliteTriggers = []string{
	`DROP TRIGGER IF EXISTS trg_notifications_insert`,
	`CREATE TRIGGER trg_notifications_insert AFTER INSERT ON notifications
BEGIN
	INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at)
	VALUES ('notifications', NEW.id, NEW.user_id, 'INSERT', CURRENT_TIMESTAMP);
END`,
	`DROP TRIGGER IF EXISTS trg_notifications_update`,
	`CREATE TRIGGER trg_notifications_update AFTER UPDATE ON notifications
BEGIN
	INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at)
	VALUES ('notifications', NEW.id, NEW.user_id, 'UPDATE', CURRENT_TIMESTAMP);
END`,
	`DROP TRIGGER IF EXISTS trg_notifications_delete`,
	`CREATE TRIGGER trg_notifications_delete AFTER DELETE ON notifications
BEGIN
	INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at)
	VALUES ('notifications', OLD.id, OLD.user_id, 'DELETE', CURRENT_TIMESTAMP);
END`,
}

var mysqlTriggers = []string{
	"DROP TRIGGER IF EXISTS trg_notifications_insert",
	"CREATE TRIGGER trg_notifications_insert AFTER INSERT ON notifications FOR EACH ROW " +
		"INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at) " +
		"VALUES ('notifications', NEW.id, NEW.user_id, 'INSERT', UTC_TIMESTAMP())",
	"DROP TRIGGER IF EXISTS trg_notifications_update",
	"CREATE TRIGGER trg_notifications_update AFTER UPDATE ON notifications FOR EACH ROW " +
		"INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at) " +
		"VALUES ('notifications', NEW.id, NEW.user_id, 'UPDATE', UTC_TIMESTAMP())",
	"DROP TRIGGER IF EXISTS trg_notifications_delete",
	"CREATE TRIGGER trg_notifications_delete AFTER DELETE ON notifications FOR EACH ROW " +
		"INSERT INTO db_changes (table_name, record_id, scope_id, action_type, changed_at) " +
		"VALUES ('notifications', OLD.id, OLD.user_id, 'DELETE', UTC_TIMESTAMP())",
}

func ExecuteTriggers(db *gorm.DB) error {
	var statements []string
	switch db.Dialector.Name() {
	case "sqlite":
		statements = sqliteTriggers
	case "mysql":
		statements = mysqlTriggers
	default:
		return fmt.Errorf("no triggers for dialect %q", db.Dialector.Name())
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			utils.ErrorLogger.Errorf("Error executing trigger: %v\nStatement: %s", err, stmt)
			return err
		}
	}
	utils.InfoLogger.Printf("Change feed triggers installed (%s)", db.Dialector.Name())
	return nil
}
