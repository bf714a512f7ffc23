package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
)

// DryRunExecutor pretends to run actions. Used for local development and demos.
type DryRunExecutor struct {
	delay  time.Duration
	logger *logger.Logger
}

func NewDryRunExecutor(delay time.Duration, log *logger.Logger) *DryRunExecutor {
	return &DryRunExecutor{delay: delay, logger: log}
}

func (e *DryRunExecutor) Execute(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
	command := target.Commands[action]
	if command == "" {
		command = action + ".sh"
	}
	e.logger.Infow("executor_dry_run", "target", target.ID, "action", action, "command", command)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dry run cancelled: %w", ctx.Err())
	case <-time.After(e.delay):
	}

	return domain.JSONB{
		"host":    target.Address(),
		"action":  action,
		"command": command,
		"output":  fmt.Sprintf("dry run: would execute %q on %s", command, target.Address()),
		"dry_run": true,
	}, nil
}

// TCPProber marks a target active when its SSH port accepts connections.
type TCPProber struct{}

func (TCPProber) Probe(ctx context.Context, target domain.DeploymentTarget) (*domain.TargetProbe, error) {
	var d net.Dialer
	addr := net.JoinHostPort(target.Address(), strconv.Itoa(target.SSHPort()))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn.Close()
	return &domain.TargetProbe{Specs: target.Specs}, nil
}
