package ports

import (
	"context"
	"time"

	"github.com/booner/backend/internal/domain"
)

type TaskRepository interface {
	Save(ctx context.Context, task *domain.TaskRecord) error
	GetAll(ctx context.Context) ([]domain.TaskRecord, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
