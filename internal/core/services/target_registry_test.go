package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetRegistryLookup(t *testing.T) {
	r := newTestTargetRegistry(t)

	target, err := r.Lookup("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.11", target.Host)

	_, err = r.Lookup("worker-9")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestTargetRegistryIsActionAllowed(t *testing.T) {
	r := newTestTargetRegistry(t)

	assert.True(t, r.IsActionAllowed("worker-1", "deploy"))
	assert.False(t, r.IsActionAllowed("worker-1", "migrate"))
	assert.True(t, r.IsActionAllowed("worker-2", "migrate"))
	assert.False(t, r.IsActionAllowed("worker-9", "deploy"))
}

func TestTargetRegistryListKeepsRosterOrder(t *testing.T) {
	r := newTestTargetRegistry(t)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "worker-1", list[0].ID)
	assert.Equal(t, "worker-2", list[1].ID)
}

func TestTargetRegistryReplaceRejectsInvalidRoster(t *testing.T) {
	r := newTestTargetRegistry(t)

	cases := map[string][]domain.DeploymentTarget{
		"missing id": {{Actions: []string{"deploy"}}},
		"duplicate":  {{ID: "a", Actions: []string{"deploy"}}, {ID: "a", Actions: []string{"deploy"}}},
		"no actions": {{ID: "a"}},
	}
	for name, roster := range cases {
		t.Run(name, func(t *testing.T) {
			err := r.Replace(roster)
			assert.ErrorIs(t, err, ErrInvalidRoster)
			// previous roster still served
			_, err = r.Lookup("worker-1")
			assert.NoError(t, err)
		})
	}
}

func TestTargetRegistryCopiesInput(t *testing.T) {
	targets := testTargets()
	r, err := NewTargetRegistry(targets, logger.NewNop())
	require.NoError(t, err)

	targets[0].Actions[0] = "migrate"
	assert.True(t, r.IsActionAllowed("worker-1", "deploy"))
	assert.False(t, r.IsActionAllowed("worker-1", "migrate"))
}

func TestTargetRegistryNormalizesActions(t *testing.T) {
	r, err := NewTargetRegistry([]domain.DeploymentTarget{{
		ID:       "w",
		Actions:  []string{"Deploy", " RESTART "},
		Commands: map[string]string{"Deploy": "./deploy.sh"},
	}}, logger.NewNop())
	require.NoError(t, err)

	assert.True(t, r.IsActionAllowed("w", "deploy"))
	assert.True(t, r.IsActionAllowed("w", "Deploy"))
	assert.True(t, r.IsActionAllowed("w", "restart"))

	target, err := r.Lookup("w")
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy", "restart"}, target.Actions)
	assert.Equal(t, "./deploy.sh", target.Commands["deploy"])

	err = r.Replace([]domain.DeploymentTarget{{ID: "w", Actions: []string{"  "}}})
	assert.ErrorIs(t, err, ErrInvalidRoster)
}

func TestLoadTargetsFileAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	writeFile(t, path, `
deployment_targets:
  - id: worker-1
    host: 10.0.0.11
    role: application
    actions: [status, deploy]
    commands:
      status: uptime
`)

	targets, err := LoadTargetsFile(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, []string{"deploy", "status"}, targets[0].Actions)
	assert.Equal(t, "uptime", targets[0].Commands["status"])

	r, err := NewTargetRegistry(targets, logger.NewNop())
	require.NoError(t, err)

	writeFile(t, path, `
deployment_targets:
  - id: worker-1
    actions: [deploy]
  - id: worker-3
    actions: [backup]
`)
	require.NoError(t, r.Reload(path))
	assert.Len(t, r.List(), 2)
	assert.True(t, r.IsActionAllowed("worker-3", "backup"))
	assert.False(t, r.IsActionAllowed("worker-1", "status"))

	writeFile(t, path, "deployment_targets: [{id: broken}]")
	err = r.Reload(path)
	assert.ErrorIs(t, err, ErrInvalidRoster)
	assert.Len(t, r.List(), 2)

	_, err = LoadTargetsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
