package db

import (
	"github.com/booner/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.TaskRecord{}); err != nil {
		return err
	}

	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Retention pruning scans finished tasks by age
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_finished_updated
		ON tasks (updated_at)
		WHERE status IN ('completed', 'failed')
	`).Error; err != nil {
		return err
	}

	return nil
}
