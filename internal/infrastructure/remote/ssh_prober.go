package remote

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/booner/backend/internal/domain"
)

const probeCommand = "cat /proc/loadavg && nproc && grep MemTotal /proc/meminfo"

// SSHProber reads load and hardware summary from a target over SSH.
type SSHProber struct {
	encryptionKey  string
	connectTimeout time.Duration
}

func NewSSHProber(encryptionKey string, connectTimeout time.Duration) *SSHProber {
	return &SSHProber{encryptionKey: encryptionKey, connectTimeout: connectTimeout}
}

func (p *SSHProber) Probe(ctx context.Context, target domain.DeploymentTarget) (*domain.TargetProbe, error) {
	creds, err := resolveCredentials(target.Access, p.encryptionKey)
	if err != nil {
		return nil, err
	}

	timeout := p.connectTimeout
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left < timeout || timeout == 0 {
			timeout = left
		}
	}

	client := NewSSHClient(SSHConfig{
		Host:       target.Address(),
		Port:       target.SSHPort(),
		User:       creds.User,
		Password:   creds.Password,
		PrivateKey: creds.PrivateKey,
		Timeout:    timeout,
		MaxRetries: 1,
	})

	res, err := client.RunCommand(ctx, probeCommand)
	if err != nil {
		return nil, err
	}
	return parseProbeOutput(res.Stdout)
}

// parseProbeOutput reads the output of probeCommand. Load is the 1-minute
// load average divided by core count, capped at 1.
func parseProbeOutput(out string) (*domain.TargetProbe, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("probe: unexpected output %q", out)
	}

	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return nil, fmt.Errorf("probe: empty loadavg")
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("probe: parse loadavg: %w", err)
	}
	cores, err := strconv.Atoi(lines[1])
	if err != nil || cores < 1 {
		return nil, fmt.Errorf("probe: parse nproc %q", lines[1])
	}

	load := load1 / float64(cores)
	if load > 1 {
		load = 1
	}

	specs := fmt.Sprintf("%d cores", cores)
	if len(lines) > 2 {
		if memFields := strings.Fields(lines[2]); len(memFields) >= 2 {
			if kb, err := strconv.ParseFloat(memFields[1], 64); err == nil {
				specs = fmt.Sprintf("%s, %.1f GB RAM", specs, kb/(1024*1024))
			}
		}
	}

	return &domain.TargetProbe{Load: load, Specs: specs}, nil
}
