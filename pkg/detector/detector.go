// Package detector compares a benchmark report against a rolling
// baseline and decides, per benchmark and per metric, whether the run
// regressed. Directionality is explicit: a metric without a declared
// direction is a configuration error, never a guess.
package detector

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/fractalyze/perfgate/pkg/baseline"
	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/report"
)

// Direction declares whether an increase or a decrease of a metric is a
// degradation.
type Direction string

const (
	// LowerIsBetter flags a regression when the metric increases beyond
	// the threshold (latency, memory).
	LowerIsBetter Direction = "lower_is_better"

	// HigherIsBetter flags a regression when the metric decreases beyond
	// the threshold (throughput).
	HigherIsBetter Direction = "higher_is_better"
)

// DefaultDirections returns the built-in directionality for the metrics
// the benchmark schema knows about.
func DefaultDirections() map[string]Direction {
	return map[string]Direction{
		report.MetricLatency:    LowerIsBetter,
		report.MetricThroughput: HigherIsBetter,
		report.MetricMemory:     LowerIsBetter,
	}
}

// Decision is the outcome for one (benchmark, metric) pair present in
// both the current report and the baseline.
type Decision struct {
	Benchmark     string    `json:"benchmark_name"`
	Metric        string    `json:"metric_name"`
	Current       float64   `json:"current_value"`
	Baseline      float64   `json:"baseline_value"`
	RelativeDelta float64   `json:"relative_delta"`
	IsRegression  bool      `json:"is_regression"`
	IsImprovement bool      `json:"is_improvement"`
	Direction     Direction `json:"direction"`
}

// MarshalJSON emits relative_delta as null when it is not finite (the
// zero-baseline case), since JSON has no representation for infinity.
func (d Decision) MarshalJSON() ([]byte, error) {
	type alias Decision

	out := struct {
		alias
		RelativeDelta *float64 `json:"relative_delta"`
	}{alias: alias(d)}

	if !math.IsInf(d.RelativeDelta, 0) && !math.IsNaN(d.RelativeDelta) {
		out.RelativeDelta = &d.RelativeDelta
	}

	return json.Marshal(out)
}

// Detector applies the relative-threshold rule with per-metric
// directionality.
type Detector struct {
	threshold  float64
	directions map[string]Direction
}

// New creates a Detector. The threshold must be in (0, 1); directions
// must use known direction values. Both are configuration errors when
// violated, raised here before any data is compared.
func New(threshold float64, directions map[string]Direction) (*Detector, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, &config.ConfigurationError{
			Field:  "regression_threshold",
			Reason: "must be in (0, 1)",
		}
	}

	merged := DefaultDirections()

	for metric, dir := range directions {
		if dir != LowerIsBetter && dir != HigherIsBetter {
			return nil, &config.ConfigurationError{
				Field:  "metric_directions." + metric,
				Reason: "must be lower_is_better or higher_is_better",
			}
		}

		merged[metric] = dir
	}

	return &Detector{
		threshold:  threshold,
		directions: merged,
	}, nil
}

// Detect produces one decision per (benchmark, metric) pair present in
// both the current report and the baseline. Benchmarks or metrics
// without a baseline entry produce no decision: there is nothing to
// compare against, and silence must not read as a pass or a fail.
// Output is ordered by benchmark name, then metric name.
func (d *Detector) Detect(
	current *report.BenchmarkReport, base baseline.Baseline,
) ([]Decision, error) {
	var decisions []Decision

	for _, name := range current.BenchmarkNames() {
		entry := current.Benchmarks[name]
		if entry == nil {
			continue
		}

		metrics := entry.Metrics()

		metricNames := make([]string, 0, len(metrics))
		for metric := range metrics {
			metricNames = append(metricNames, metric)
		}

		sort.Strings(metricNames)

		for _, metric := range metricNames {
			baseValue, ok := base.Value(name, metric)
			if !ok {
				continue
			}

			direction, ok := d.directions[metric]
			if !ok {
				return nil, &config.ConfigurationError{
					Field:  "metric_directions." + metric,
					Reason: "no direction declared for metric",
				}
			}

			decisions = append(decisions, d.decide(
				name, metric, metrics[metric].Value, baseValue, direction,
			))
		}
	}

	return decisions, nil
}

func (d *Detector) decide(
	benchmark, metric string, current, base float64, direction Direction,
) Decision {
	var delta float64

	switch {
	case base == 0 && current == 0:
		delta = 0
	case base == 0:
		// Metric appeared where the baseline had none measured. For
		// lower-is-better metrics any nonzero value is a degradation;
		// for higher-is-better it is an emerging capability.
		delta = math.Inf(1)
	default:
		delta = (current - base) / base
	}

	decision := Decision{
		Benchmark:     benchmark,
		Metric:        metric,
		Current:       current,
		Baseline:      base,
		RelativeDelta: delta,
		Direction:     direction,
	}

	switch direction {
	case LowerIsBetter:
		decision.IsRegression = delta > d.threshold
		decision.IsImprovement = delta < -d.threshold
	case HigherIsBetter:
		decision.IsRegression = delta < -d.threshold
		decision.IsImprovement = delta > d.threshold
	}

	return decision
}
