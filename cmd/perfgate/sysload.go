package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/gha"
	"github.com/fractalyze/perfgate/pkg/sysload"
)

var checkSystemLoadCmd = &cobra.Command{
	Use:   "check-system-load",
	Short: "Check host load before running benchmarks",
	Long: `Samples the 1-minute load average and memory usage and warns when either
exceeds its threshold. Benchmarks run on an overloaded host produce noisy
numbers; the check never fails the build, it only annotates it.`,
	RunE: runCheckSystemLoad,
}

func init() {
	rootCmd.AddCommand(checkSystemLoadCmd)
}

func runCheckSystemLoad(_ *cobra.Command, _ []string) error {
	cfg := &config.SysLoadConfig{
		CPULoadThreshold: config.DefaultCPULoadThreshold,
		MemoryThreshold:  config.DefaultMemoryThreshold,
	}

	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = &loaded.SysLoad
	}

	snap, err := sysload.NewChecker(log, cfg).Check(context.Background())
	if err != nil {
		return fmt.Errorf("checking system load: %w", err)
	}

	outputs := map[string]string{
		"cpu_load":       fmt.Sprintf("%.3f", snap.CPU.NormalizedLoad),
		"memory_usage":   fmt.Sprintf("%.3f", snap.Memory.UsageRatio),
		"cpu_warning":    fmt.Sprintf("%t", snap.CPU.Warning),
		"memory_warning": fmt.Sprintf("%t", snap.Memory.Warning),
	}

	for key, value := range outputs {
		if err := gha.SetOutput(key, value); err != nil {
			return fmt.Errorf("writing output %s: %w", key, err)
		}
	}

	if snap.CPU.Warning {
		gha.Warning("High CPU load (%.2f normalized, threshold %.2f): benchmark results may be noisy",
			snap.CPU.NormalizedLoad, snap.CPU.Threshold)
	}

	if snap.Memory.Warning {
		gha.Warning("High memory usage (%.1f%%, threshold %.1f%%): benchmark results may be noisy",
			snap.Memory.UsageRatio*100, snap.Memory.Threshold*100)
	}

	if cfg.OutputFile != "" {
		if err := snap.WriteFile(cfg.OutputFile); err != nil {
			return err
		}
	}

	return nil
}
