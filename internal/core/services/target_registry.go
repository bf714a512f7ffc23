package services

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"gopkg.in/yaml.v3"
)

type roster struct {
	byID  map[string]domain.DeploymentTarget
	order []string
}

// TargetRegistry holds the deployment target roster. Readers never lock;
// a reload builds a new roster and swaps the pointer.
type TargetRegistry struct {
	current atomic.Pointer[roster]
	logger  *logger.Logger
}

func NewTargetRegistry(targets []domain.DeploymentTarget, log *logger.Logger) (*TargetRegistry, error) {
	r := &TargetRegistry{logger: log}
	if err := r.Replace(targets); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace validates targets and swaps them in as the whole roster.
func (r *TargetRegistry) Replace(targets []domain.DeploymentTarget) error {
	next := &roster{byID: make(map[string]domain.DeploymentTarget, len(targets))}
	for i, t := range targets {
		if t.ID == "" {
			return fmt.Errorf("%w: target #%d has no id", ErrInvalidRoster, i)
		}
		if _, dup := next.byID[t.ID]; dup {
			return fmt.Errorf("%w: duplicate target id %q", ErrInvalidRoster, t.ID)
		}
		if len(t.Actions) == 0 {
			return fmt.Errorf("%w: target %q has no allowed actions", ErrInvalidRoster, t.ID)
		}
		actions := make([]string, 0, len(t.Actions))
		for _, a := range t.Actions {
			a = domain.NormalizeAction(a)
			if a == "" {
				return fmt.Errorf("%w: target %q has an empty action", ErrInvalidRoster, t.ID)
			}
			actions = append(actions, a)
		}
		t.Actions = actions
		if t.Commands != nil {
			cmds := make(map[string]string, len(t.Commands))
			for k, v := range t.Commands {
				cmds[domain.NormalizeAction(k)] = v
			}
			t.Commands = cmds
		}
		next.byID[t.ID] = t
		next.order = append(next.order, t.ID)
	}
	r.current.Store(next)
	r.logger.Infow("target_registry_loaded", "count", len(next.order))
	return nil
}

// Reload re-reads the roster file and swaps it in. On error the current
// roster stays in place.
func (r *TargetRegistry) Reload(path string) error {
	targets, err := LoadTargetsFile(path)
	if err != nil {
		r.logger.Warnw("target_registry_reload_failed", "path", path, "error", err)
		return err
	}
	return r.Replace(targets)
}

func (r *TargetRegistry) Lookup(id string) (domain.DeploymentTarget, error) {
	t, ok := r.current.Load().byID[id]
	if !ok {
		return domain.DeploymentTarget{}, fmt.Errorf("%w: %s", ErrInvalidTarget, id)
	}
	return t, nil
}

func (r *TargetRegistry) IsActionAllowed(id, action string) bool {
	t, ok := r.current.Load().byID[id]
	return ok && t.Allows(action)
}

// List returns targets in roster order.
func (r *TargetRegistry) List() []domain.DeploymentTarget {
	cur := r.current.Load()
	out := make([]domain.DeploymentTarget, 0, len(cur.order))
	for _, id := range cur.order {
		out = append(out, cur.byID[id])
	}
	return out
}

type rosterFile struct {
	Targets []domain.DeploymentTarget `yaml:"deployment_targets"`
}

// LoadTargetsFile parses a YAML roster:
//
//	deployment_targets:
//	  - id: worker-1
//	    host: 10.0.0.11
//	    role: game
//	    actions: [deploy, restart, status]
func LoadTargetsFile(path string) ([]domain.DeploymentTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}

	for i := range rf.Targets {
		sort.Strings(rf.Targets[i].Actions)
	}
	return rf.Targets, nil
}
