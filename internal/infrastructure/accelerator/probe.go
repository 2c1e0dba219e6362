// Package accelerator detects the GPU available to the worker and samples host resources.
package accelerator

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// CommandRunner runs an external command and returns its standard output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Probe queries nvidia-smi for the first GPU. A missing binary or a failing query means no
// accelerator; it is never an error.
func Probe(ctx context.Context, run CommandRunner, smiPath string) domain.AcceleratorInfo {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := run(ctx, smiPath, "--query-gpu=name,memory.total,driver_version", "--format=csv,noheader,nounits")
	if err != nil {
		return domain.AcceleratorInfo{}
	}
	return parseSMI(string(out))
}

func parseSMI(out string) domain.AcceleratorInfo {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if line == "" {
		return domain.AcceleratorInfo{}
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	info := domain.AcceleratorInfo{Available: true, Name: fields[0]}
	if len(fields) > 1 {
		info.MemoryTotalMB, _ = strconv.Atoi(fields[1])
	}
	if len(fields) > 2 {
		info.DriverVersion = fields[2]
	}
	return info
}

// HostStats samples CPU count, memory usage and the worker's own RSS
func HostStats(ctx context.Context) (*domain.HostStats, error) {
	stats := &domain.HostStats{}

	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	stats.CPUCount = count

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats.MemoryTotalMB = vm.Total / 1024 / 1024
	stats.MemoryUsedPct = vm.UsedPercent

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		stats.ProcessRSSMB = info.RSS / 1024 / 1024
	}
	return stats, nil
}
