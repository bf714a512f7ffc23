package hoststats

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const gib = 1024 * 1024 * 1024

// Collector reads main-server metrics with gopsutil.
type Collector struct {
	diskPath     string
	sampleWindow time.Duration
	gpuQuery     func(ctx context.Context) string
}

func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Collector{
		diskPath:     diskPath,
		sampleWindow: 200 * time.Millisecond,
		gpuQuery:     queryNvidiaSMI,
	}
}

func (c *Collector) Collect(ctx context.Context) (domain.MainServerStatus, error) {
	status := domain.MainServerStatus{Status: domain.TargetStatusActive}

	// CPU Usage
	cpuPercent, err := cpu.PercentWithContext(ctx, c.sampleWindow, false)
	if err != nil {
		return status, fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpuPercent) > 0 {
		status.CPUPercent = cpuPercent[0]
	}
	cores, _ := cpu.CountsWithContext(ctx, true)
	model, mhz := "Unknown CPU", 0.0
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		model = strings.TrimSpace(infos[0].ModelName)
		mhz = infos[0].Mhz
	}
	freq := "Unknown"
	if mhz > 0 {
		freq = fmt.Sprintf("%.2f MHz", mhz)
	}
	status.CPU = fmt.Sprintf("%s (%d cores @ %s, %.1f%% used)", model, cores, freq, status.CPUPercent)

	// Memory Usage
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return status, fmt.Errorf("virtual memory: %w", err)
	}
	status.RAMPercent = memInfo.UsedPercent
	status.RAM = fmt.Sprintf("%.2f GB (%.1f%% used)", float64(memInfo.Total)/gib, memInfo.UsedPercent)

	// Disk Usage
	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return status, fmt.Errorf("disk usage %s: %w", c.diskPath, err)
	}
	status.DiskPercent = usage.UsedPercent
	status.Disk = fmt.Sprintf("%.2f GB (%.1f%% used)", float64(usage.Total)/gib, usage.UsedPercent)

	status.GPU = c.gpuQuery(ctx)
	if status.GPU == "" {
		status.GPU = "None"
	}
	return status, nil
}

// queryNvidiaSMI returns "<name> (<used>/<total> @ <temp>°C)" or "" when no
// NVIDIA GPU is present.
func queryNvidiaSMI(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,memory.used,temperature.gpu",
		"--format=csv,noheader").Output()
	if err != nil {
		return ""
	}
	return formatGPULine(string(out))
}

func formatGPULine(out string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return ""
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return fmt.Sprintf("%s (%s/%s @ %s°C)", parts[0], parts[2], parts[1], parts[3])
}
