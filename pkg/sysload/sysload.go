// Package sysload samples host CPU load and memory usage before a
// benchmark run. A loaded machine produces noisy numbers, so CI can use
// the warning flags to skip or annotate the run.
package sysload

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/fractalyze/perfgate/pkg/config"
)

// CPULoad reports the 1-minute load average normalized by core count.
type CPULoad struct {
	LoadAvg1m      float64 `json:"load_avg_1m"`
	CPUCount       int     `json:"cpu_count"`
	NormalizedLoad float64 `json:"normalized_load"`
	Threshold      float64 `json:"threshold"`
	Warning        bool    `json:"warning"`
}

// MemoryUsage reports the used/total memory ratio.
type MemoryUsage struct {
	UsageRatio float64 `json:"usage_ratio"`
	UsedMB     uint64  `json:"used_mb"`
	TotalMB    uint64  `json:"total_mb"`
	Threshold  float64 `json:"threshold"`
	Warning    bool    `json:"warning"`
}

// Snapshot is the pre-flight load check result.
type Snapshot struct {
	CPU    CPULoad     `json:"cpu"`
	Memory MemoryUsage `json:"memory"`
}

// Warning reports whether either resource exceeded its threshold.
func (s *Snapshot) Warning() bool {
	return s.CPU.Warning || s.Memory.Warning
}

// WriteFile writes the snapshot as indented JSON.
func (s *Snapshot) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling system load snapshot: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing system load snapshot: %w", err)
	}

	return nil
}

// Checker samples host load via gopsutil.
type Checker struct {
	log logrus.FieldLogger
	cfg *config.SysLoadConfig
}

// NewChecker creates a load checker with the given thresholds.
func NewChecker(log logrus.FieldLogger, cfg *config.SysLoadConfig) *Checker {
	return &Checker{
		log: log.WithField("component", "sysload"),
		cfg: cfg,
	}
}

// Check samples the host and evaluates the configured thresholds.
func (c *Checker) Check(ctx context.Context) (*Snapshot, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading load average: %w", err)
	}

	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("reading cpu count: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory stats: %w", err)
	}

	snap := Evaluate(avg.Load1, count, vm.Total-vm.Available, vm.Total, c.cfg)

	c.log.WithFields(logrus.Fields{
		"normalized_load": fmt.Sprintf("%.3f", snap.CPU.NormalizedLoad),
		"memory_used":     units.BytesSize(float64(vm.Total - vm.Available)),
		"memory_total":    units.BytesSize(float64(vm.Total)),
	}).Info("System load sampled")

	if snap.CPU.Warning {
		c.log.WithField("threshold", c.cfg.CPULoadThreshold).
			Warn("High CPU load detected")
	}

	if snap.Memory.Warning {
		c.log.WithField("threshold", c.cfg.MemoryThreshold).
			Warn("High memory usage detected")
	}

	return snap, nil
}

// Evaluate applies the thresholds to raw samples. Split out from Check
// so threshold behavior is testable without touching the host.
func Evaluate(
	loadAvg1m float64, cpuCount int, memUsed, memTotal uint64,
	cfg *config.SysLoadConfig,
) *Snapshot {
	if cpuCount < 1 {
		cpuCount = 1
	}

	normalized := loadAvg1m / float64(cpuCount)

	var ratio float64
	if memTotal > 0 {
		ratio = float64(memUsed) / float64(memTotal)
	}

	return &Snapshot{
		CPU: CPULoad{
			LoadAvg1m:      round2(loadAvg1m),
			CPUCount:       cpuCount,
			NormalizedLoad: round3(normalized),
			Threshold:      cfg.CPULoadThreshold,
			Warning:        normalized > cfg.CPULoadThreshold,
		},
		Memory: MemoryUsage{
			UsageRatio: round3(ratio),
			UsedMB:     memUsed / units.MiB,
			TotalMB:    memTotal / units.MiB,
			Threshold:  cfg.MemoryThreshold,
			Warning:    ratio > cfg.MemoryThreshold,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
