package ports

import (
	"context"

	"github.com/booner/backend/internal/domain"
)

// Executor performs an action against a target. Any error it returns is
// recorded verbatim as the task's error.
type Executor interface {
	Execute(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error)

func (f ExecutorFunc) Execute(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
	return f(ctx, target, action)
}

// TargetProber reports load and specs for one target. It must honour ctx.
type TargetProber interface {
	Probe(ctx context.Context, target domain.DeploymentTarget) (*domain.TargetProbe, error)
}

// HostMetrics collects metrics for the machine the orchestrator runs on.
type HostMetrics interface {
	Collect(ctx context.Context) (domain.MainServerStatus, error)
}

// TaskPublisher receives every task transition.
type TaskPublisher interface {
	PublishTask(task *domain.Task)
}

// SnapshotPublisher receives every rebuilt system snapshot.
type SnapshotPublisher interface {
	PublishSnapshot(snapshot *domain.SystemSnapshot)
}

// TaskSource is the read side of the task registry used by the hub and the
// fallback endpoints.
type TaskSource interface {
	ListAll() (domain.TaskTable, uint64)
	Get(id string) (*domain.Task, error)
}

// SnapshotSource returns the most recent snapshot, or nil before the first tick.
type SnapshotSource interface {
	Latest() *domain.SystemSnapshot
}

// TargetLookup is the read side of the target registry.
type TargetLookup interface {
	Lookup(id string) (domain.DeploymentTarget, error)
	IsActionAllowed(id, action string) bool
	List() []domain.DeploymentTarget
}

// TaskDispatcher accepts operation requests.
type TaskDispatcher interface {
	Submit(ctx context.Context, targetID, action string) (*domain.Task, error)
}
