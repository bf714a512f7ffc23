package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/infrastructure/metrics"
)

var ErrDispatcherClosed = errors.New("dispatcher: shutting down")

type job struct {
	taskID string
	target domain.DeploymentTarget
	action string
}

// lane is the single execution slot of one target. Jobs run strictly one at
// a time, in submission order.
type lane struct {
	queue   []job
	running bool
}

// Dispatcher accepts operation requests and runs them through the executor,
// one at a time per target.
type Dispatcher struct {
	targets   ports.TargetLookup
	registry  *TaskRegistry
	executor  ports.Executor
	publisher ports.TaskPublisher
	logger    *logger.Logger
	timeout   time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// gate is read-held for the whole of Submit so Shutdown cannot start
	// waiting while a submission is between validation and enqueue.
	gate   sync.RWMutex
	closed bool

	mu    sync.Mutex
	lanes map[string]*lane
}

type DispatcherConfig struct {
	Targets   ports.TargetLookup
	Registry  *TaskRegistry
	Executor  ports.Executor
	Publisher ports.TaskPublisher
	Logger    *logger.Logger
	// ExecutionTimeout bounds a single executor call. Zero means no bound.
	ExecutionTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		targets:   cfg.Targets,
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		timeout:   cfg.ExecutionTimeout,
		baseCtx:   ctx,
		cancel:    cancel,
		lanes:     make(map[string]*lane),
	}
}

// Submit validates the request, records a queued task and schedules it on
// the target's lane. It returns as soon as the task is queued.
func (d *Dispatcher) Submit(ctx context.Context, targetID, action string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	action = domain.NormalizeAction(action)

	d.gate.RLock()
	defer d.gate.RUnlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}

	target, err := d.targets.Lookup(targetID)
	if err != nil {
		metrics.TasksRejected.WithLabelValues("invalid_target").Inc()
		d.logger.Warnw("dispatch_rejected", "target", targetID, "action", action, "error", err)
		return nil, err
	}
	if !target.Allows(action) {
		metrics.TasksRejected.WithLabelValues("action_not_allowed").Inc()
		d.logger.Warnw("dispatch_rejected", "target", targetID, "action", action, "allowed", target.Actions)
		return nil, fmt.Errorf("%w: %q on %s", ErrActionNotAllowed, action, targetID)
	}

	task, err := d.registry.Create(targetID, action)
	if err != nil {
		return nil, err
	}
	d.publish(task)
	metrics.TasksSubmitted.WithLabelValues(targetID, action).Inc()
	d.logger.Infow("task_queued", "task_id", task.ID, "target", targetID, "action", action)

	d.enqueue(job{taskID: task.ID, target: target, action: action})
	return task, nil
}

// Pending returns how many jobs wait behind the running one on a target.
func (d *Dispatcher) Pending(targetID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lanes[targetID]; ok {
		return len(l.queue)
	}
	return 0
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lanes[j.target.ID]
	if !ok {
		l = &lane{}
		d.lanes[j.target.ID] = l
	}
	l.queue = append(l.queue, j)
	if !l.running {
		l.running = true
		d.wg.Add(1)
		go d.drain(j.target.ID, l)
	}
}

func (d *Dispatcher) drain(targetID string, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(d.lanes, targetID)
			d.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.run(next)
	}
}

func (d *Dispatcher) run(j job) {
	task, err := d.registry.Transition(j.taskID, domain.TaskStatusRunning, nil, "")
	if err != nil {
		d.logger.Errorw("task_start_failed", "task_id", j.taskID, "error", err)
		return
	}
	d.publish(task)
	d.logger.Infow("task_running", "task_id", j.taskID, "target", j.target.ID, "action", j.action)

	metrics.TasksInFlight.Inc()
	start := time.Now()
	result, execErr := d.execute(j)
	elapsed := time.Since(start)
	metrics.TasksInFlight.Dec()
	metrics.TaskDuration.WithLabelValues(j.action).Observe(elapsed.Seconds())

	if execErr != nil {
		task, err = d.registry.Transition(j.taskID, domain.TaskStatusFailed, nil, execErr.Error())
	} else {
		task, err = d.registry.Transition(j.taskID, domain.TaskStatusCompleted, result, "")
	}
	if err != nil {
		d.logger.Errorw("task_finish_failed", "task_id", j.taskID, "error", err)
		return
	}
	d.publish(task)
	metrics.TasksFinished.WithLabelValues(j.target.ID, j.action, string(task.Status)).Inc()

	if execErr != nil {
		d.logger.Warnw("task_failed", "task_id", j.taskID, "target", j.target.ID, "action", j.action,
			"duration_ms", elapsed.Milliseconds(), "error", execErr)
		return
	}
	d.logger.Infow("task_completed", "task_id", j.taskID, "target", j.target.ID, "action", j.action,
		"duration_ms", elapsed.Milliseconds())
}

// execute calls the executor, turning panics into errors so one bad run only
// fails its own task.
func (d *Dispatcher) execute(j job) (result domain.JSONB, err error) {
	ctx := d.baseCtx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Errorw("executor_panic", "task_id", j.taskID, "panic", rec, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("%w: executor panic: %v", ErrExecutionFailure, rec)
		}
	}()

	return d.executor.Execute(ctx, j.target, j.action)
}

func (d *Dispatcher) publish(task *domain.Task) {
	if d.publisher != nil {
		d.publisher.PublishTask(task)
	}
}

// Shutdown stops accepting work and waits for every lane to drain. When ctx
// expires first, in-flight executions are cancelled and Shutdown returns
// without waiting for executors that ignore cancellation.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.gate.Lock()
	d.closed = true
	d.gate.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
