package db

import (
	"context"
	"time"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

// Save upserts the task row.
func (r *taskRepository) Save(ctx context.Context, task *domain.TaskRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "result", "error", "updated_at"}),
		}).
		Create(task).Error
	if err != nil {
		r.log.Errorw("task_repo_save_failed", "id", task.ID, "status", task.Status, "error", err)
		return err
	}
	r.log.Debugw("task_repo_save_ok", "id", task.ID, "status", task.Status)
	return nil
}

func (r *taskRepository) GetAll(ctx context.Context) ([]domain.TaskRecord, error) {
	var tasks []domain.TaskRecord
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, err
	}
	r.log.Infow("task_repo_list_ok", "count", len(tasks))
	return tasks, nil
}

// DeleteFinishedBefore removes completed and failed tasks last updated before cutoff.
func (r *taskRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed}, cutoff).
		Delete(&domain.TaskRecord{})
	if res.Error != nil {
		r.log.Errorw("task_repo_cleanup_failed", "error", res.Error)
		return 0, res.Error
	}
	r.log.Infow("task_repo_cleanup_ok", "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}
