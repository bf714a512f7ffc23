package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRegistryCreate(t *testing.T) {
	reg := newTestTaskRegistry(t, nil)

	task, err := reg.Create("worker-1", "deploy")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)
	assert.Equal(t, "worker-1", task.TargetID)
	assert.Nil(t, task.Result)
	assert.Empty(t, task.Error)

	_, err = reg.Create("worker-9", "deploy")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = reg.Create("worker-1", "migrate")
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	assert.Equal(t, 1, reg.Len())
}

func TestTaskRegistryTransitions(t *testing.T) {
	reg := newTestTaskRegistry(t, nil)
	task, err := reg.Create("worker-1", "deploy")
	require.NoError(t, err)

	_, err = reg.Transition(task.ID, domain.TaskStatusCompleted, domain.JSONB{"output": "ok"}, "")
	assert.ErrorIs(t, err, ErrInvalidTransition, "queued cannot skip running")

	running, err := reg.Transition(task.ID, domain.TaskStatusRunning, nil, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, running.Status)
	assert.Greater(t, running.Seq, task.Seq)

	done, err := reg.Transition(task.ID, domain.TaskStatusCompleted, domain.JSONB{"output": "ok"}, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", done.Result["output"])
	assert.Empty(t, done.Error)

	_, err = reg.Transition(task.ID, domain.TaskStatusRunning, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal tasks never move")

	_, err = reg.Transition("nope", domain.TaskStatusRunning, nil, "")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskRegistryTerminalPayloadInvariants(t *testing.T) {
	reg := newTestTaskRegistry(t, nil)

	a, _ := reg.Create("worker-1", "deploy")
	_, err := reg.Transition(a.ID, domain.TaskStatusRunning, nil, "")
	require.NoError(t, err)
	completed, err := reg.Transition(a.ID, domain.TaskStatusCompleted, nil, "ignored")
	require.NoError(t, err)
	assert.NotNil(t, completed.Result)
	assert.Empty(t, completed.Error)

	b, _ := reg.Create("worker-1", "restart")
	_, err = reg.Transition(b.ID, domain.TaskStatusRunning, nil, "")
	require.NoError(t, err)
	failed, err := reg.Transition(b.ID, domain.TaskStatusFailed, domain.JSONB{"ignored": true}, "")
	require.NoError(t, err)
	assert.Nil(t, failed.Result)
	assert.Equal(t, "unknown error", failed.Error)
}

func TestTaskRegistryReturnsCopies(t *testing.T) {
	reg := newTestTaskRegistry(t, nil)
	task, _ := reg.Create("worker-1", "deploy")
	_, err := reg.Transition(task.ID, domain.TaskStatusRunning, nil, "")
	require.NoError(t, err)
	_, err = reg.Transition(task.ID, domain.TaskStatusCompleted, domain.JSONB{"output": "ok"}, "")
	require.NoError(t, err)

	table, seq := reg.ListAll()
	assert.Equal(t, uint64(3), seq)
	table[task.ID].Status = domain.TaskStatusQueued
	table[task.ID].Result["output"] = "tampered"
	delete(table, task.ID)

	got, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Result["output"])
}

func TestTaskRegistryConcurrentCreatesGetUniqueIDs(t *testing.T) {
	reg := newTestTaskRegistry(t, nil)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := reg.Create("worker-2", "backup")
			if err == nil {
				ids <- task.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, reg.Len())
}

func TestTaskRegistryPersistsEveryMutation(t *testing.T) {
	repo := newFakeTaskRepo()
	reg := newTestTaskRegistry(t, repo)

	task, _ := reg.Create("worker-1", "deploy")
	_, err := reg.Transition(task.ID, domain.TaskStatusRunning, nil, "")
	require.NoError(t, err)
	_, err = reg.Transition(task.ID, domain.TaskStatusFailed, nil, "exit status 1")
	require.NoError(t, err)

	rec, ok := repo.get(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	assert.Equal(t, "exit status 1", rec.Error)
	assert.Equal(t, 3, repo.saves)
}

func TestTaskRegistryRestore(t *testing.T) {
	repo := newFakeTaskRepo()
	reg := newTestTaskRegistry(t, repo)
	then := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []domain.TaskRecord{
		{ID: "done", TargetID: "worker-1", Action: "deploy", Status: domain.TaskStatusCompleted, CreatedAt: then, UpdatedAt: then},
		{ID: "broken", TargetID: "worker-1", Action: "restart", Status: domain.TaskStatusFailed, CreatedAt: then, UpdatedAt: then},
		{ID: "midway", TargetID: "worker-2", Action: "backup", Status: domain.TaskStatusRunning, CreatedAt: then, UpdatedAt: then},
		{ID: "done", TargetID: "worker-1", Action: "deploy", Status: domain.TaskStatusQueued},
	}
	assert.Equal(t, 3, reg.Restore(records))

	done, err := reg.Get("done")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	assert.NotNil(t, done.Result)

	broken, _ := reg.Get("broken")
	assert.Equal(t, "unknown error", broken.Error)

	midway, _ := reg.Get("midway")
	assert.Equal(t, domain.TaskStatusFailed, midway.Status)
	assert.Contains(t, midway.Error, "interrupted")

	rec, ok := repo.get("midway")
	require.True(t, ok, "interrupted task is written back")
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)

	_, seq := reg.ListAll()
	assert.Equal(t, uint64(3), seq)
}

func TestTaskRegistryPruneFinished(t *testing.T) {
	repo := newFakeTaskRepo()
	reg := newTestTaskRegistry(t, repo)
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return start }

	old, _ := reg.Create("worker-1", "deploy")
	_, _ = reg.Transition(old.ID, domain.TaskStatusRunning, nil, "")
	_, _ = reg.Transition(old.ID, domain.TaskStatusCompleted, nil, "")
	stuck, _ := reg.Create("worker-2", "backup")

	reg.now = func() time.Time { return start.Add(2 * time.Hour) }
	fresh, _ := reg.Create("worker-1", "restart")
	_, _ = reg.Transition(fresh.ID, domain.TaskStatusRunning, nil, "")
	_, _ = reg.Transition(fresh.ID, domain.TaskStatusFailed, nil, "boom")

	removed := reg.PruneFinished(context.Background(), time.Hour)
	assert.Equal(t, 1, removed)

	_, err := reg.Get(old.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = reg.Get(stuck.ID)
	assert.NoError(t, err, "queued tasks are never pruned")
	_, err = reg.Get(fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), repo.deleteCutoff)
}

func TestTaskRegistryRunRetentionDisabled(t *testing.T) {
	reg := NewTaskRegistry(TaskRegistryConfig{Targets: newTestTargetRegistry(t), Logger: logger.NewNop()})

	done := make(chan struct{})
	go func() {
		reg.RunRetention(context.Background(), time.Millisecond, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention with zero retention should return immediately")
	}
}
