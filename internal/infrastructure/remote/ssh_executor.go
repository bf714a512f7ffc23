package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var ErrNoCommand = errors.New("executor: no command configured for action")

// SSHExecutor runs target actions over SSH. An action resolves to the
// target's configured command, or else to <scripts_dir>/<action>.sh which is
// uploaded with sftp and run.
type SSHExecutor struct {
	encryptionKey  string
	scriptsDir     string
	connectTimeout time.Duration
	maxRetries     int
	logger         *logger.Logger
}

type SSHExecutorConfig struct {
	EncryptionKey  string
	ScriptsDir     string
	ConnectTimeout time.Duration
	MaxRetries     int
	Logger         *logger.Logger
}

func NewSSHExecutor(cfg SSHExecutorConfig) *SSHExecutor {
	return &SSHExecutor{
		encryptionKey:  cfg.EncryptionKey,
		scriptsDir:     cfg.ScriptsDir,
		connectTimeout: cfg.ConnectTimeout,
		maxRetries:     cfg.MaxRetries,
		logger:         cfg.Logger,
	}
}

func (e *SSHExecutor) Execute(ctx context.Context, target domain.DeploymentTarget, action string) (domain.JSONB, error) {
	command, script := e.resolveAction(target, action)
	if command == "" && script == "" {
		return nil, fmt.Errorf("%w: %q on %s", ErrNoCommand, action, target.ID)
	}

	creds, err := resolveCredentials(target.Access, e.encryptionKey)
	if err != nil {
		return nil, err
	}

	client := NewSSHClient(SSHConfig{
		Host:       target.Address(),
		Port:       target.SSHPort(),
		User:       creds.User,
		Password:   creds.Password,
		PrivateKey: creds.PrivateKey,
		Timeout:    e.connectTimeout,
		MaxRetries: e.maxRetries,
	})

	e.logger.Infow("executor_ssh_connect", "target", target.ID, "addr", client.Address(), "action", action)
	conn, err := client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if script != "" {
		remotePath, err := e.uploadScript(conn, script, action)
		if err != nil {
			return nil, err
		}
		command = fmt.Sprintf("bash %s; rc=$?; rm -f %s; exit $rc", remotePath, remotePath)
	}

	res, err := client.Execute(ctx, conn, command)
	if err != nil {
		return nil, err
	}

	e.logger.Infow("executor_ssh_done", "target", target.ID, "action", action, "duration_ms", res.Duration.Milliseconds())
	return domain.JSONB{
		"host":        target.Address(),
		"action":      action,
		"command":     displayCommand(command, script),
		"output":      res.Stdout,
		"stderr":      res.Stderr,
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	}, nil
}

// resolveAction returns either an inline command or a local script path.
func (e *SSHExecutor) resolveAction(target domain.DeploymentTarget, action string) (command, script string) {
	if cmd := strings.TrimSpace(target.Commands[action]); cmd != "" {
		return cmd, ""
	}
	if e.scriptsDir == "" {
		return "", ""
	}
	path := filepath.Join(e.scriptsDir, action+".sh")
	if _, err := os.Stat(path); err == nil {
		return "", path
	}
	return "", ""
}

func (e *SSHExecutor) uploadScript(conn *ssh.Client, localPath, action string) (string, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open script %s: %w", localPath, err)
	}
	defer localFile.Close()

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return "", fmt.Errorf("failed to create sftp client: %w", err)
	}
	defer sftpClient.Close()

	remotePath := fmt.Sprintf("/tmp/booner-%s-%s.sh", action, uuid.New().String()[:8])
	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := remoteFile.ReadFrom(localFile)
	remoteFile.Close()
	if err != nil {
		return "", fmt.Errorf("failed to upload script: %w", err)
	}
	if err := sftpClient.Chmod(remotePath, 0700); err != nil {
		return "", fmt.Errorf("failed to chmod script: %w", err)
	}

	e.logger.Infow("executor_script_uploaded", "local", localPath, "remote", remotePath, "size_bytes", written)
	return remotePath, nil
}

func displayCommand(command, script string) string {
	if script != "" {
		return "script:" + filepath.Base(script)
	}
	return command
}
