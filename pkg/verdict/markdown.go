package verdict

import (
	"fmt"
	"math"
	"strings"

	"github.com/docker/go-units"

	"github.com/fractalyze/perfgate/pkg/report"
)

// GenerateMarkdown renders the CI step summary: a per-benchmark metric
// table followed by the verdict and its supporting decisions.
func GenerateMarkdown(current *report.BenchmarkReport, v *Report) string {
	var sb strings.Builder

	sb.Grow(2048)

	writeHeader(&sb, v)
	writeBenchmarkTable(&sb, current)
	writeDecisions(&sb, v)
	writeValidationErrors(&sb, v)

	return sb.String()
}

func writeHeader(sb *strings.Builder, v *Report) {
	sb.WriteString("## Benchmark Results\n\n")
	fmt.Fprintf(sb, "**Implementation:** %s  \n", v.Implementation)
	fmt.Fprintf(sb, "**Commit:** `%s`\n\n", v.CommitSHA)
}

func writeBenchmarkTable(sb *strings.Builder, current *report.BenchmarkReport) {
	if current == nil || len(current.Benchmarks) == 0 {
		return
	}

	sb.WriteString("| Benchmark | Latency (ns) | Throughput (ops/s) | Memory | Verified |\n")
	sb.WriteString("|-----------|--------------|--------------------|--------|---------:|\n")

	for _, name := range current.BenchmarkNames() {
		entry := current.Benchmarks[name]

		latency := "N/A"
		if entry.Latency != nil {
			latency = fmt.Sprintf("%.2f", entry.Latency.Value)
		}

		throughput := "N/A"
		if entry.Throughput != nil {
			throughput = fmt.Sprintf("%.0f", entry.Throughput.Value)
		}

		memory := "N/A"
		if entry.Memory != nil {
			memory = units.HumanSize(entry.Memory.Value)
		}

		verified := "No"
		if entry.TestVectors != nil && entry.TestVectors.Verified {
			verified = "Yes"
		} else if entry.TestVectors == nil {
			verified = "-"
		}

		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n",
			name, latency, throughput, memory, verified)
	}

	sb.WriteString("\n")
}

func writeDecisions(sb *strings.Builder, v *Report) {
	if !v.Valid() {
		return
	}

	switch {
	case v.HasRegression:
		fmt.Fprintf(sb, "### Verdict: regression detected (%s)\n\n", v.ChangeType)
	case v.ChangeType == ChangeImprovement:
		sb.WriteString("### Verdict: improvement\n\n")
	default:
		sb.WriteString("### Verdict: no regression\n\n")
	}

	if len(v.Decisions) == 0 {
		sb.WriteString("No baseline history available for comparison.\n")

		return
	}

	sb.WriteString("| Benchmark | Metric | Current | Baseline | Change | Status |\n")
	sb.WriteString("|-----------|--------|---------|----------|--------|--------|\n")

	for _, d := range v.Decisions {
		change := "n/a"
		if !math.IsInf(d.RelativeDelta, 0) && !math.IsNaN(d.RelativeDelta) {
			change = fmt.Sprintf("%+.1f%%", d.RelativeDelta*100)
		}

		status := "ok"

		switch {
		case d.IsRegression:
			status = "regression"
		case d.IsImprovement:
			status = "improvement"
		}

		fmt.Fprintf(sb, "| %s | %s | %.2f | %.2f | %s | %s |\n",
			d.Benchmark, d.Metric, d.Current, d.Baseline, change, status)
	}
}

func writeValidationErrors(sb *strings.Builder, v *Report) {
	if v.Valid() {
		return
	}

	sb.WriteString("### Verdict: INVALID REPORT\n\n")
	sb.WriteString("Validation failed; no regression claim can be made:\n\n")

	for _, msg := range v.ValidationErrors {
		fmt.Fprintf(sb, "- %s\n", msg)
	}
}
