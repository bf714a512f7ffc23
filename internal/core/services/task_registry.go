package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
)

const persistTimeout = 5 * time.Second

// TaskRegistry owns every task ever submitted. All access goes through its
// mutex; callers only ever see copies.
type TaskRegistry struct {
	targets ports.TargetLookup
	repo    ports.TaskRepository
	logger  *logger.Logger

	mu    sync.RWMutex
	tasks map[string]*domain.Task
	seq   uint64
	now   func() time.Time
}

type TaskRegistryConfig struct {
	Targets    ports.TargetLookup
	Repository ports.TaskRepository // optional
	Logger     *logger.Logger
}

func NewTaskRegistry(cfg TaskRegistryConfig) *TaskRegistry {
	return &TaskRegistry{
		targets: cfg.Targets,
		repo:    cfg.Repository,
		logger:  cfg.Logger,
		tasks:   make(map[string]*domain.Task),
		now:     time.Now,
	}
}

// ==================== Mutations ====================

// Create inserts a queued task after checking the target and action.
func (r *TaskRegistry) Create(targetID, action string) (*domain.Task, error) {
	action = domain.NormalizeAction(action)
	target, err := r.targets.Lookup(targetID)
	if err != nil {
		return nil, err
	}
	if !target.Allows(action) {
		return nil, fmt.Errorf("%w: %q on %s", ErrActionNotAllowed, action, targetID)
	}

	r.mu.Lock()
	id := uuid.New().String()
	for _, taken := r.tasks[id]; taken; _, taken = r.tasks[id] {
		id = uuid.New().String()
	}
	now := r.now()
	r.seq++
	task := &domain.Task{
		ID:        id,
		TargetID:  targetID,
		Action:    action,
		Status:    domain.TaskStatusQueued,
		Seq:       r.seq,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = task
	out := task.Clone()
	r.mu.Unlock()

	r.persist(out)
	return out, nil
}

// Transition moves a task along queued -> running -> {completed | failed}.
// For completed the payload becomes the result; for failed, errMsg becomes
// the error. Any other combination is rejected.
func (r *TaskRegistry) Transition(id string, status domain.TaskStatus, result domain.JSONB, errMsg string) (*domain.Task, error) {
	r.mu.Lock()
	task, exists := r.tasks[id]
	if !exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !domain.CanTransition(task.Status, status) {
		from := task.Status
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	switch status {
	case domain.TaskStatusCompleted:
		if result == nil {
			result = domain.JSONB{}
		}
		task.Result = result
	case domain.TaskStatusFailed:
		if errMsg == "" {
			errMsg = "unknown error"
		}
		task.Error = errMsg
	}
	task.Status = status
	task.UpdatedAt = r.now()
	r.seq++
	task.Seq = r.seq
	out := task.Clone()
	r.mu.Unlock()

	r.persist(out)
	return out, nil
}

// ==================== Reads ====================

func (r *TaskRegistry) Get(id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// ListAll returns a point-in-time copy of the whole table together with the
// sequence number of the last mutation it includes.
func (r *TaskRegistry) ListAll() (domain.TaskTable, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := make(domain.TaskTable, len(r.tasks))
	for id, task := range r.tasks {
		table[id] = task.Clone()
	}
	return table, r.seq
}

func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// ==================== History ====================

// Restore loads persisted tasks. Tasks a previous process left queued or
// running can never finish and are loaded as failed.
func (r *TaskRegistry) Restore(records []domain.TaskRecord) int {
	var interrupted []*domain.Task

	r.mu.Lock()
	for i := range records {
		task := records[i].ToTask()
		if _, exists := r.tasks[task.ID]; exists {
			continue
		}
		if !task.Status.IsTerminal() {
			task.Status = domain.TaskStatusFailed
			task.Result = nil
			task.Error = "interrupted: orchestrator restarted before the task finished"
			task.UpdatedAt = r.now()
			interrupted = append(interrupted, task)
		}
		if task.Status == domain.TaskStatusCompleted && task.Result == nil {
			task.Result = domain.JSONB{}
		}
		if task.Status == domain.TaskStatusFailed && task.Error == "" {
			task.Error = "unknown error"
		}
		r.seq++
		task.Seq = r.seq
		r.tasks[task.ID] = task
	}
	count := len(r.tasks)
	copies := make([]*domain.Task, 0, len(interrupted))
	for _, t := range interrupted {
		copies = append(copies, t.Clone())
	}
	r.mu.Unlock()

	for _, t := range copies {
		r.persist(t)
	}
	r.logger.Infow("task_registry_restored", "count", count, "interrupted", len(copies))
	return count
}

// PruneFinished drops terminal tasks last updated before now-olderThan.
// Queued and running tasks are never pruned.
func (r *TaskRegistry) PruneFinished(ctx context.Context, olderThan time.Duration) int {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	removed := 0
	for id, task := range r.tasks {
		if task.Status.IsTerminal() && task.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	r.mu.Unlock()

	if r.repo != nil {
		if _, err := r.repo.DeleteFinishedBefore(ctx, cutoff); err != nil {
			r.logger.Errorw("task_registry_prune_persist_failed", "error", err)
		}
	}
	if removed > 0 {
		r.logger.Infow("task_registry_pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed
}

func (r *TaskRegistry) persist(task *domain.Task) {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, domain.NewTaskRecord(task)); err != nil {
		r.logger.Errorw("task_registry_persist_failed", "task_id", task.ID, "status", task.Status, "error", err)
	}
}

// RunRetention prunes finished tasks older than retention every interval
// until ctx is done. A zero retention disables it.
func (r *TaskRegistry) RunRetention(ctx context.Context, interval, retention time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneFinished(ctx, retention)
		}
	}
}
