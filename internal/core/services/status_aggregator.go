package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAggregationInterval = 3 * time.Second
	DefaultProbeTimeout        = 2 * time.Second
)

// StatusAggregator periodically rebuilds the SystemSnapshot and pushes it to
// the hub. It exclusively owns the current snapshot.
type StatusAggregator struct {
	targets      ports.TargetLookup
	host         ports.HostMetrics
	prober       ports.TargetProber
	publisher    ports.SnapshotPublisher
	logger       *logger.Logger
	interval     time.Duration
	probeTimeout time.Duration
	maxParallel  int

	mu     sync.RWMutex
	latest *domain.SystemSnapshot
	now    func() time.Time
}

type StatusAggregatorConfig struct {
	Targets      ports.TargetLookup
	Host         ports.HostMetrics
	Prober       ports.TargetProber
	Publisher    ports.SnapshotPublisher
	Logger       *logger.Logger
	Interval     time.Duration
	ProbeTimeout time.Duration
	// MaxParallel caps concurrent probes. Zero probes every target at once,
	// which keeps a rebuild within ProbeTimeout.
	MaxParallel int
}

func NewStatusAggregator(cfg StatusAggregatorConfig) *StatusAggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAggregationInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.MaxParallel < 0 {
		cfg.MaxParallel = 0
	}
	return &StatusAggregator{
		targets:      cfg.Targets,
		host:         cfg.Host,
		prober:       cfg.Prober,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
		interval:     cfg.Interval,
		probeTimeout: cfg.ProbeTimeout,
		maxParallel:  cfg.MaxParallel,
		now:          time.Now,
	}
}

// Run rebuilds the snapshot immediately and then on every tick until ctx is done.
func (a *StatusAggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Infow("status_aggregator_started", "interval", a.interval, "probe_timeout", a.probeTimeout)
	a.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Infow("status_aggregator_stopped")
			return
		case <-ticker.C:
			a.Refresh(ctx)
		}
	}
}

// Latest returns a copy of the most recent snapshot, or nil before the first rebuild.
func (a *StatusAggregator) Latest() *domain.SystemSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return nil
	}
	return a.latest.Clone()
}

// Refresh builds a complete snapshot, stores it and publishes it. Probe
// failures end up in the snapshot; they never abort the rebuild.
func (a *StatusAggregator) Refresh(ctx context.Context) *domain.SystemSnapshot {
	start := time.Now()
	targets := a.targets.List()
	statuses := make([]domain.TargetStatus, len(targets))
	var main domain.MainServerStatus

	g, gctx := errgroup.WithContext(ctx)
	// host collection plus one slot per target unless capped
	limit := len(targets) + 1
	if a.maxParallel > 0 && a.maxParallel < limit {
		limit = a.maxParallel
	}
	g.SetLimit(limit)

	g.Go(func() error {
		main = a.collectMain(gctx)
		return nil
	})
	for i, t := range targets {
		g.Go(func() error {
			statuses[i] = a.probe(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	snap := &domain.SystemSnapshot{
		MainServer:        main,
		DeploymentTargets: statuses,
		CollectedAt:       a.now(),
	}

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()

	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if a.publisher != nil {
		a.publisher.PublishSnapshot(snap.Clone())
	}
	return snap.Clone()
}

func (a *StatusAggregator) collectMain(ctx context.Context) domain.MainServerStatus {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	status, err := a.host.Collect(ctx)
	if err != nil {
		a.logger.Warnw("host_metrics_failed", "error", err)
		return domain.MainServerStatus{
			CPU:    "Error retrieving CPU info",
			GPU:    "Error retrieving GPU info",
			RAM:    "Error retrieving RAM info",
			Disk:   "Error retrieving disk info",
			Status: "error",
		}
	}
	if status.Status == "" {
		status.Status = domain.TargetStatusActive
	}
	return status
}

type probeOutcome struct {
	probe *domain.TargetProbe
	err   error
}

// probe never takes longer than probeTimeout, even if the prober ignores ctx.
func (a *StatusAggregator) probe(ctx context.Context, t domain.DeploymentTarget) domain.TargetStatus {
	status := domain.TargetStatus{
		ID:     t.ID,
		Host:   t.Address(),
		Role:   t.Role,
		Status: domain.TargetStatusInactive,
		Specs:  t.Specs,
	}

	pctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	out := make(chan probeOutcome, 1)
	go func() {
		p, err := a.prober.Probe(pctx, t)
		out <- probeOutcome{probe: p, err: err}
	}()

	var res probeOutcome
	select {
	case res = <-out:
	case <-pctx.Done():
		res = probeOutcome{err: pctx.Err()}
	}

	switch {
	case res.err == nil && res.probe != nil:
		status.Status = domain.TargetStatusActive
		status.Active = true
		status.Load = res.probe.Load
		if res.probe.Specs != "" {
			status.Specs = res.probe.Specs
		}
	case res.err != nil && errors.Is(res.err, context.DeadlineExceeded):
		status.Error = fmt.Sprintf("%v after %s", ErrProbeTimeout, a.probeTimeout)
		metrics.ProbeFailures.WithLabelValues(t.ID, "timeout").Inc()
		a.logger.Debugw("probe_timeout", "target", t.ID, "timeout", a.probeTimeout)
	case res.err != nil:
		status.Error = res.err.Error()
		metrics.ProbeFailures.WithLabelValues(t.ID, "error").Inc()
		a.logger.Debugw("probe_failed", "target", t.ID, "error", res.err)
	default:
		status.Error = "probe returned no data"
		metrics.ProbeFailures.WithLabelValues(t.ID, "empty").Inc()
	}
	if status.Specs == "" {
		status.Specs = "Unknown"
	}
	return status
}
