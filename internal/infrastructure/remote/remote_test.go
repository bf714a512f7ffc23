package remote

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/pkg/utils/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestParseProbeOutput(t *testing.T) {
	out := "1.60 1.20 0.90 2/345 6789\n4\nMemTotal:       32781232 kB\n"

	probe, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, probe.Load, 1e-9)
	assert.Equal(t, "4 cores, 31.3 GB RAM", probe.Specs)
}

func TestParseProbeOutputCapsLoad(t *testing.T) {
	probe, err := parseProbeOutput("12.00 8.00 4.00 1/1 1\n2\n")
	require.NoError(t, err)
	assert.Equal(t, 1.0, probe.Load)
	assert.Equal(t, "2 cores", probe.Specs)
}

func TestParseProbeOutputRejectsGarbage(t *testing.T) {
	for _, out := range []string{"", "bash: nproc: command not found", "abc\n4\n", "0.5 0.5 0.5\nzero\n"} {
		_, err := parseProbeOutput(out)
		assert.Error(t, err, "%q", out)
	}
}

func TestDescribeRunError(t *testing.T) {
	res := &CommandResult{}
	err := describeRunError(&ssh.ExitMissingError{}, res)
	assert.ErrorIs(t, err, ErrSSHCommandFailed)
	assert.Equal(t, -1, res.ExitCode)

	res = &CommandResult{}
	err = describeRunError(errors.New("broken pipe"), res)
	assert.ErrorIs(t, err, ErrSSHCommandFailed)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "only", lastLines("only\n", 5))
	assert.Equal(t, "", lastLines("", 5))
}

func TestResolveCredentials(t *testing.T) {
	const key = "test-encryption-key"

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("PRIVATE KEY"), 0o600))

	creds, err := resolveCredentials(domain.AccessRef{KeyPath: keyPath}, key)
	require.NoError(t, err)
	assert.Equal(t, "root", creds.User)
	assert.Equal(t, "PRIVATE KEY", creds.PrivateKey)

	sealed, err := crypto.Seal("s3cret", key)
	require.NoError(t, err)
	creds, err = resolveCredentials(domain.AccessRef{User: "deploy", Password: sealed}, key)
	require.NoError(t, err)
	assert.Equal(t, "deploy", creds.User)
	assert.Equal(t, "s3cret", creds.Password)

	creds, err = resolveCredentials(domain.AccessRef{Password: "plain"}, "")
	require.NoError(t, err)
	assert.Equal(t, "plain", creds.Password)

	_, err = resolveCredentials(domain.AccessRef{Password: sealed}, "wrong-key")
	assert.ErrorIs(t, err, ErrSSHAuthentication)

	_, err = resolveCredentials(domain.AccessRef{User: "deploy"}, key)
	assert.ErrorIs(t, err, ErrSSHAuthentication)

	_, err = resolveCredentials(domain.AccessRef{KeyPath: filepath.Join(dir, "missing")}, key)
	assert.ErrorIs(t, err, ErrSSHAuthentication)
}

func TestSSHExecutorResolveAction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.sh"), []byte("#!/bin/sh\necho ok\n"), 0o755))
	e := NewSSHExecutor(SSHExecutorConfig{ScriptsDir: dir, Logger: logger.NewNop()})

	target := domain.DeploymentTarget{ID: "worker-1", Commands: map[string]string{"status": " uptime "}}

	cmd, script := e.resolveAction(target, "status")
	assert.Equal(t, "uptime", cmd)
	assert.Empty(t, script)

	cmd, script = e.resolveAction(target, "deploy")
	assert.Empty(t, cmd)
	assert.Equal(t, filepath.Join(dir, "deploy.sh"), script)
	assert.Equal(t, "script:deploy.sh", displayCommand(cmd, script))

	cmd, script = e.resolveAction(target, "backup")
	assert.Empty(t, cmd)
	assert.Empty(t, script)
}

func TestSSHExecutorNoCommand(t *testing.T) {
	e := NewSSHExecutor(SSHExecutorConfig{ScriptsDir: t.TempDir(), Logger: logger.NewNop()})

	_, err := e.Execute(context.Background(), domain.DeploymentTarget{ID: "worker-1"}, "migrate")
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestDryRunExecutor(t *testing.T) {
	e := NewDryRunExecutor(time.Millisecond, logger.NewNop())
	target := domain.DeploymentTarget{ID: "worker-1", Host: "10.0.0.11"}

	result, err := e.Execute(context.Background(), target, "deploy")
	require.NoError(t, err)
	assert.Equal(t, true, result["dry_run"])
	assert.Equal(t, "deploy.sh", result["command"])
	assert.Equal(t, "10.0.0.11", result["host"])

	slow := NewDryRunExecutor(time.Hour, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Execute(ctx, target, "deploy")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	target := domain.DeploymentTarget{ID: "local", Host: "127.0.0.1", Port: port, Specs: "loopback"}

	probe, err := TCPProber{}.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "loopback", probe.Specs)

	// nothing listens on the closed listener's port
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	target.Port = deadPort
	_, err = TCPProber{}.Probe(context.Background(), target)
	assert.Error(t, err, "port %s should refuse", strconv.Itoa(deadPort))
}
