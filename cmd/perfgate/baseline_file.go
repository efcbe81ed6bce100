package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fractalyze/perfgate/pkg/baseline"
	"github.com/fractalyze/perfgate/pkg/config"
)

var generateBaselineCmd = &cobra.Command{
	Use:   "generate-baseline",
	Short: "Generate a baseline document from stored history",
	Long: `Reads the stored history window for the configured implementation and
writes a baseline document with rolling-average values. With fewer than two
stored reports the most recent report is used verbatim.`,
	RunE: runGenerateBaseline,
}

var baselineOutput string

func init() {
	rootCmd.AddCommand(generateBaselineCmd)
	generateBaselineCmd.Flags().StringVar(&baselineOutput, "output", "baseline.json",
		"Output file path")
}

func runGenerateBaseline(_ *cobra.Command, _ []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := context.Background()

	window, err := newHistoryStore(cfg).Load(ctx, cfg.Detection.Implementation)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	doc := baseline.BuildDocument(window)
	if doc == nil {
		return fmt.Errorf("no history stored for %q", cfg.Detection.Implementation)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling baseline: %w", err)
	}

	if err := os.WriteFile(baselineOutput, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing baseline file: %w", err)
	}

	log.WithField("output", baselineOutput).
		WithField("type", doc.Metadata.BaselineType).
		WithField("samples", doc.Metadata.SampleCount).
		Info("Baseline generated")

	return nil
}
