package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, exec ports.Executor, timeout time.Duration) (*Dispatcher, *TaskRegistry, *recordingPublisher) {
	t.Helper()
	targets := newTestTargetRegistry(t)
	reg := NewTaskRegistry(TaskRegistryConfig{Targets: targets, Logger: logger.NewNop()})
	pub := &recordingPublisher{}
	d := NewDispatcher(DispatcherConfig{
		Targets:          targets,
		Registry:         reg,
		Executor:         exec,
		Publisher:        pub,
		Logger:           logger.NewNop(),
		ExecutionTimeout: timeout,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d, reg, pub
}

func okExecutor() ports.Executor {
	return ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		return domain.JSONB{"host": target.Host, "action": action}, nil
	})
}

func TestDispatcherRejectsDisallowedAction(t *testing.T) {
	d, reg, pub := newTestDispatcher(t, okExecutor(), 0)

	_, err := d.Submit(context.Background(), "worker-1", "migrate")
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	_, err = d.Submit(context.Background(), "worker-9", "deploy")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	assert.Equal(t, 0, reg.Len(), "rejected submissions leave the table untouched")
	assert.Equal(t, 0, pub.taskCount())
}

func TestDispatcherRunsTaskToCompletion(t *testing.T) {
	d, reg, pub := newTestDispatcher(t, okExecutor(), 0)

	task, err := d.Submit(context.Background(), "worker-1", "deploy")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)

	done := waitForStatus(t, reg, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, "10.0.0.11", done.Result["host"])
	assert.Empty(t, done.Error)

	require.Eventually(t, func() bool { return len(pub.statuses(task.ID)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t,
		[]domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskStatusCompleted},
		pub.statuses(task.ID))
}

func TestDispatcherNormalizesAction(t *testing.T) {
	d, reg, _ := newTestDispatcher(t, okExecutor(), 0)

	task, err := d.Submit(context.Background(), "worker-1", " Deploy ")
	require.NoError(t, err)
	assert.Equal(t, "deploy", task.Action)

	done := waitForStatus(t, reg, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, "deploy", done.Result["action"])
}

func TestDispatcherEmptyResultStillOnWire(t *testing.T) {
	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		return nil, nil
	})
	d, reg, _ := newTestDispatcher(t, exec, 0)

	task, err := d.Submit(context.Background(), "worker-1", "deploy")
	require.NoError(t, err)
	done := waitForStatus(t, reg, task.ID, domain.TaskStatusCompleted)

	raw, err := json.Marshal(done)
	require.NoError(t, err)
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Contains(t, wire, "result")
	assert.Equal(t, map[string]interface{}{}, wire["result"])
	assert.NotContains(t, wire, "error")
}

func TestDispatcherRecordsExecutorError(t *testing.T) {
	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		return nil, errors.New("ssh: dial tcp 10.0.0.12:22: connection refused")
	})
	d, reg, _ := newTestDispatcher(t, exec, 0)

	task, err := d.Submit(context.Background(), "worker-2", "backup")
	require.NoError(t, err)

	failed := waitForStatus(t, reg, task.ID, domain.TaskStatusFailed)
	assert.Equal(t, "ssh: dial tcp 10.0.0.12:22: connection refused", failed.Error)
	assert.Nil(t, failed.Result)
}

func TestDispatcherRecoversExecutorPanic(t *testing.T) {
	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		if action == "restart" {
			panic("nil map")
		}
		return domain.JSONB{}, nil
	})
	d, reg, _ := newTestDispatcher(t, exec, 0)

	bad, err := d.Submit(context.Background(), "worker-1", "restart")
	require.NoError(t, err)
	good, err := d.Submit(context.Background(), "worker-1", "deploy")
	require.NoError(t, err)

	failed := waitForStatus(t, reg, bad.ID, domain.TaskStatusFailed)
	assert.Contains(t, failed.Error, "executor panic")
	waitForStatus(t, reg, good.ID, domain.TaskStatusCompleted)
}

func TestDispatcherOneExecutionPerTarget(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	running := map[string]int{}
	peak := map[string]int{}
	started := map[string][]string{}

	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		mu.Lock()
		running[target.ID]++
		if running[target.ID] > peak[target.ID] {
			peak[target.ID] = running[target.ID]
		}
		started[target.ID] = append(started[target.ID], action)
		mu.Unlock()

		<-release

		mu.Lock()
		running[target.ID]--
		mu.Unlock()
		return domain.JSONB{}, nil
	})
	d, reg, _ := newTestDispatcher(t, exec, 0)

	ctx := context.Background()
	first, err := d.Submit(ctx, "worker-1", "deploy")
	require.NoError(t, err)
	second, err := d.Submit(ctx, "worker-1", "restart")
	require.NoError(t, err)
	third, err := d.Submit(ctx, "worker-1", "status")
	require.NoError(t, err)
	other, err := d.Submit(ctx, "worker-2", "backup")
	require.NoError(t, err)

	// Different targets run side by side; the same target waits.
	waitForStatus(t, reg, first.ID, domain.TaskStatusRunning)
	waitForStatus(t, reg, other.ID, domain.TaskStatusRunning)

	s2, _ := reg.Get(second.ID)
	s3, _ := reg.Get(third.ID)
	assert.Equal(t, domain.TaskStatusQueued, s2.Status)
	assert.Equal(t, domain.TaskStatusQueued, s3.Status)
	assert.Equal(t, 2, d.Pending("worker-1"))

	close(release)
	for _, id := range []string{first.ID, second.ID, third.ID, other.ID} {
		waitForStatus(t, reg, id, domain.TaskStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak["worker-1"])
	assert.Equal(t, []string{"deploy", "restart", "status"}, started["worker-1"], "FIFO per target")
}

func TestDispatcherExecutionTimeout(t *testing.T) {
	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d, reg, _ := newTestDispatcher(t, exec, 20*time.Millisecond)

	task, err := d.Submit(context.Background(), "worker-1", "deploy")
	require.NoError(t, err)

	failed := waitForStatus(t, reg, task.ID, domain.TaskStatusFailed)
	assert.Equal(t, context.DeadlineExceeded.Error(), failed.Error)
}

func TestDispatcherShutdown(t *testing.T) {
	exec := ports.ExecutorFunc(func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d, reg, _ := newTestDispatcher(t, exec, 0)

	task, err := d.Submit(context.Background(), "worker-1", "deploy")
	require.NoError(t, err)
	waitForStatus(t, reg, task.ID, domain.TaskStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	_, err = d.Submit(context.Background(), "worker-1", "deploy")
	assert.ErrorIs(t, err, ErrDispatcherClosed)

	failed := waitForStatus(t, reg, task.ID, domain.TaskStatusFailed)
	assert.Contains(t, failed.Error, "context canceled")
}

func TestDispatcherSubmitHonoursCallerContext(t *testing.T) {
	d, reg, _ := newTestDispatcher(t, okExecutor(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, "worker-1", "deploy")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, reg.Len())
}
