package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/fractalyze/perfgate/pkg/alert"
	"github.com/fractalyze/perfgate/pkg/analysis"
	"github.com/fractalyze/perfgate/pkg/baseline"
	"github.com/fractalyze/perfgate/pkg/config"
	dashstore "github.com/fractalyze/perfgate/pkg/dashboard/store"
	"github.com/fractalyze/perfgate/pkg/detector"
	"github.com/fractalyze/perfgate/pkg/gha"
	"github.com/fractalyze/perfgate/pkg/history"
	"github.com/fractalyze/perfgate/pkg/report"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

var (
	checkResultsFile string
	checkRunURL      string
)

const (
	defaultVerdictFile  = "verdict.json"
	effectiveConfigFile = "effective-config.yaml"
	analysisOutputFile  = "ai_analysis.md"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a benchmark report and check it for regressions",
	Long: `Check parses and validates a benchmark results file, compares it against
the rolling baseline for the configured implementation, writes the verdict
file, and exits non-zero when the report is invalid or a regression is
detected.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkResultsFile, "results", "",
		"Benchmark results file (overrides detection.results_file)")
	checkCmd.Flags().StringVar(&checkRunURL, "run-url", "",
		"CI run URL included in alerts")
}

func runCheck(_ *cobra.Command, _ []string) error {
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

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	resultsFile := cfg.Detection.ResultsFile
	if checkResultsFile != "" {
		resultsFile = checkResultsFile
	}

	current, validationErrors, err := loadReport(resultsFile)
	if err != nil {
		return err
	}

	meta := report.RunMetadata{Implementation: cfg.Detection.Implementation}
	if current != nil {
		meta = current.Metadata
	}

	var decisions []detector.Decision

	if len(validationErrors) == 0 {
		decisions, err = detect(ctx, cfg, current)
		if err != nil {
			return err
		}
	}

	v := verdict.Assemble(decisions, validationErrors, meta)

	if err := writeVerdict(cfg, v); err != nil {
		return err
	}

	if err := emitOutputs(cfg, current, v); err != nil {
		log.WithError(err).Warn("Failed to write CI outputs")
	}

	if v.Valid() && cfg.Detection.StoreResults {
		if err := appendHistory(ctx, cfg, current); err != nil {
			return fmt.Errorf("storing results: %w", err)
		}
	}

	runCollaborators(ctx, cfg, current, v)

	if !v.Valid() {
		return fmt.Errorf("report validation failed: %s", v.ValidationErrors[0])
	}

	if v.HasRegression {
		return fmt.Errorf("performance regression detected")
	}

	log.WithField("decisions", len(v.Decisions)).
		Info("No regression detected")

	return nil
}

// loadReport reads, parses, and validates the results file. Schema and
// test-vector failures are returned as validation errors, not command
// errors: the run still produces a verdict.
func loadReport(path string) (*report.BenchmarkReport, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading results file: %w", err)
	}

	current, err := report.Parse(data)
	if err != nil {
		log.WithError(err).Error("Results file failed to parse")

		return nil, []string{err.Error()}, nil
	}

	if err := report.DefaultValidator().Validate(current); err != nil {
		log.WithError(err).Error("Results file failed validation")

		return current, []string{err.Error()}, nil
	}

	return current, nil, nil
}

// newHistoryStore selects the configured history backend.
func newHistoryStore(cfg *config.Config) history.Store {
	if cfg.Storage.S3 != nil && cfg.Storage.S3.Enabled {
		return history.NewS3Store(log, cfg.Storage.S3, cfg.Detection.RollingWindow)
	}

	return history.NewLocalStore(log, cfg.Storage.HistoryDir, cfg.Detection.RollingWindow)
}

func detect(
	ctx context.Context, cfg *config.Config, current *report.BenchmarkReport,
) ([]detector.Decision, error) {
	directions := make(map[string]detector.Direction, len(cfg.Detection.MetricDirections))
	for metric, dir := range cfg.Detection.MetricDirections {
		directions[metric] = detector.Direction(dir)
	}

	det, err := detector.New(cfg.Detection.RegressionThreshold, directions)
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}

	window, err := newHistoryStore(cfg).Load(ctx, cfg.Detection.Implementation)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	if window.Len() == 0 {
		log.WithField("implementation", cfg.Detection.Implementation).
			Info("No history found, nothing to compare against")
	}

	decisions, err := det.Detect(current, baseline.Compute(window))
	if err != nil {
		return nil, fmt.Errorf("detecting regressions: %w", err)
	}

	return decisions, nil
}

func appendHistory(
	ctx context.Context, cfg *config.Config, current *report.BenchmarkReport,
) error {
	return newHistoryStore(cfg).Append(ctx, cfg.Detection.Implementation, current)
}

// writeVerdict writes the verdict file and an effective-config snapshot
// alongside it, so a CI run records exactly what it was gated with.
func writeVerdict(cfg *config.Config, v *verdict.Report) error {
	path := cfg.Detection.VerdictFile
	if path == "" {
		path = defaultVerdictFile
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing verdict file: %w", err)
	}

	log.WithField("file", path).
		WithField("has_regression", v.HasRegression).
		WithField("change_type", v.ChangeType).
		Info("Verdict written")

	snapshot, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling effective config: %w", err)
	}

	snapshotPath := filepath.Join(filepath.Dir(path), effectiveConfigFile)
	if err := os.WriteFile(snapshotPath, snapshot, 0644); err != nil {
		return fmt.Errorf("writing effective config: %w", err)
	}

	return nil
}

// emitOutputs publishes the verdict to GitHub Actions outputs and the
// step summary.
func emitOutputs(
	cfg *config.Config, current *report.BenchmarkReport, v *verdict.Report,
) error {
	if err := gha.SetOutput("has_regression", fmt.Sprintf("%t", v.HasRegression)); err != nil {
		return err
	}

	if err := gha.SetOutput("change_type", string(v.ChangeType)); err != nil {
		return err
	}

	resultsFile := cfg.Detection.ResultsFile
	if checkResultsFile != "" {
		resultsFile = checkResultsFile
	}

	if err := gha.SetOutput("results_file", resultsFile); err != nil {
		return err
	}

	verdictFile := cfg.Detection.VerdictFile
	if verdictFile == "" {
		verdictFile = defaultVerdictFile
	}

	if err := gha.SetOutput("verdict_file", verdictFile); err != nil {
		return err
	}

	if v.HasRegression {
		gha.Warning("Performance regression detected for %s", v.Implementation)
	}

	return gha.AppendStepSummary(verdict.GenerateMarkdown(current, v))
}

// runCollaborators records the run in the dashboard store and runs AI
// analysis concurrently, then sends the Slack alert. All of it is
// best-effort: failures are logged, never fatal, and never change the
// verdict.
func runCollaborators(
	ctx context.Context,
	cfg *config.Config,
	current *report.BenchmarkReport,
	v *verdict.Report,
) {
	var analysisText string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !cfg.Dashboard.Enabled {
			return nil
		}

		st := dashstore.NewStore(log, &cfg.Dashboard.Database)
		if err := st.Start(gctx); err != nil {
			return fmt.Errorf("starting dashboard store: %w", err)
		}

		defer func() {
			if err := st.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop dashboard store")
			}
		}()

		if _, err := st.RecordRun(gctx, v); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		text, err := analysis.NewAnalyzer(log, &cfg.Analysis).Analyze(gctx, v)
		if err != nil {
			return fmt.Errorf("running analysis: %w", err)
		}

		analysisText = text

		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("Post-verdict step failed")
	}

	if analysisText != "" {
		if err := os.WriteFile(analysisOutputFile, []byte(analysisText), 0644); err != nil {
			log.WithError(err).Warn("Failed to write analysis file")
		}

		if err := gha.AppendStepSummary(analysisText); err != nil {
			log.WithError(err).Warn("Failed to append analysis to step summary")
		}
	}

	if cfg.Alert.SlackWebhookURL == "" {
		return
	}

	if v.Valid() && v.ChangeType == verdict.ChangeNone {
		return
	}

	msg := alert.BuildMessage(v, current, checkRunURL, analysisText)
	if err := alert.NewClient(log, cfg.Alert.SlackWebhookURL).Send(ctx, msg); err != nil {
		log.WithError(err).Warn("Failed to send Slack alert")
	}
}
