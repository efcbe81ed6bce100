package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fractalyze/perfgate/pkg/report"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary from a results file and verdict",
	Long: `Reads a benchmark results file and a verdict file and produces a markdown
summary suitable for pull request comments or job summaries.`,
	RunE: runGenerateMarkdownSummary,
}

var (
	summaryResultsFile string
	summaryVerdictFile string
	summaryOutput      string
)

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&summaryResultsFile, "results",
		"benchmark_results.json", "Benchmark results file")
	generateMarkdownSummaryCmd.Flags().StringVar(&summaryVerdictFile, "verdict",
		defaultVerdictFile, "Verdict file")
	generateMarkdownSummaryCmd.Flags().StringVar(&summaryOutput, "output",
		"summary.md", "Output file path")
}

func runGenerateMarkdownSummary(_ *cobra.Command, _ []string) error {
	current, err := readResults(summaryResultsFile)
	if err != nil {
		return err
	}

	verdictData, err := os.ReadFile(summaryVerdictFile)
	if err != nil {
		return fmt.Errorf("reading verdict file: %w", err)
	}

	var v verdict.Report
	if err := json.Unmarshal(verdictData, &v); err != nil {
		return fmt.Errorf("parsing verdict file: %w", err)
	}

	md := verdict.GenerateMarkdown(current, &v)

	if err := os.WriteFile(summaryOutput, []byte(md), 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", summaryOutput).
		Info("Markdown summary generated")

	return nil
}

// readResults parses the results file if it exists. The summary can
// still be generated from the verdict alone when the results file is
// gone or unparseable.
func readResults(path string) (*report.BenchmarkReport, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading results file: %w", err)
	}

	current, err := report.Parse(data)
	if err != nil {
		log.WithError(err).Warn("Results file unparseable, summarizing verdict only")

		return nil, nil
	}

	return current, nil
}
