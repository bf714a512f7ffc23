package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/require"
)

func testTargets() []domain.DeploymentTarget {
	return []domain.DeploymentTarget{
		{ID: "worker-1", Host: "10.0.0.11", Role: "application", Actions: []string{"deploy", "restart", "status"}},
		{ID: "worker-2", Host: "10.0.0.12", Role: "database", Actions: []string{"backup", "migrate", "status"}},
	}
}

func newTestTargetRegistry(t *testing.T) *TargetRegistry {
	t.Helper()
	r, err := NewTargetRegistry(testTargets(), logger.NewNop())
	require.NoError(t, err)
	return r
}

func newTestTaskRegistry(t *testing.T, repo *fakeTaskRepo) *TaskRegistry {
	t.Helper()
	cfg := TaskRegistryConfig{
		Targets: newTestTargetRegistry(t),
		Logger:  logger.NewNop(),
	}
	if repo != nil {
		cfg.Repository = repo
	}
	return NewTaskRegistry(cfg)
}

// recordingPublisher keeps every task and snapshot it is handed.
type recordingPublisher struct {
	mu    sync.Mutex
	tasks []*domain.Task
	snaps []*domain.SystemSnapshot
}

func (p *recordingPublisher) PublishTask(task *domain.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task.Clone())
}

func (p *recordingPublisher) PublishSnapshot(snap *domain.SystemSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap.Clone())
}

func (p *recordingPublisher) statuses(taskID string) []domain.TaskStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.TaskStatus
	for _, t := range p.tasks {
		if t.ID == taskID {
			out = append(out, t.Status)
		}
	}
	return out
}

func (p *recordingPublisher) taskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *recordingPublisher) snapshotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

type fakeTaskRepo struct {
	mu           sync.Mutex
	saved        map[string]domain.TaskRecord
	saves        int
	deleteCutoff time.Time
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{saved: make(map[string]domain.TaskRecord)}
}

func (r *fakeTaskRepo) Save(_ context.Context, task *domain.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[task.ID] = *task
	r.saves++
	return nil
}

func (r *fakeTaskRepo) GetAll(_ context.Context) ([]domain.TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TaskRecord, 0, len(r.saved))
	for _, rec := range r.saved {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeTaskRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCutoff = cutoff
	return 0, nil
}

func (r *fakeTaskRepo) get(id string) (domain.TaskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.saved[id]
	return rec, ok
}

func waitForStatus(t *testing.T, reg *TaskRegistry, id string, want domain.TaskStatus) *domain.Task {
	t.Helper()
	var last *domain.Task
	require.Eventually(t, func() bool {
		task, err := reg.Get(id)
		if err != nil {
			return false
		}
		last = task
		return task.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)
	return last
}
