package detector

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalyze/perfgate/pkg/baseline"
	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/report"
)

func currentReport(benchmarks map[string]*report.BenchmarkEntry) *report.BenchmarkReport {
	return &report.BenchmarkReport{
		Metadata: report.RunMetadata{
			Implementation: "zkx-gpu",
			CommitSHA:      "abc1234",
			Timestamp:      time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		},
		Benchmarks: benchmarks,
	}
}

func TestNew_ThresholdBounds(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		wantErr   bool
	}{
		{name: "valid", threshold: 0.10},
		{name: "zero", threshold: 0, wantErr: true},
		{name: "negative", threshold: -0.1, wantErr: true},
		{name: "one", threshold: 1, wantErr: true},
		{name: "above one", threshold: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.threshold, nil)
			if tt.wantErr {
				var cfgErr *config.ConfigurationError

				require.Error(t, err)
				assert.True(t, errors.As(err, &cfgErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_BadDirectionValue(t *testing.T) {
	_, err := New(0.10, map[string]Direction{"proof_size": "sideways"})
	require.Error(t, err)
}

func TestDetect_LatencyDirectionality(t *testing.T) {
	// Baseline latency 100ns, threshold 0.10.
	base := baseline.Baseline{
		"poseidon2_hash": {report.MetricLatency: 100},
	}

	tests := []struct {
		name           string
		current        float64
		wantRegression bool
		wantDelta      float64
	}{
		{name: "15% slower regresses", current: 115, wantRegression: true, wantDelta: 0.15},
		{name: "5% slower passes", current: 105, wantRegression: false, wantDelta: 0.05},
		{name: "faster passes", current: 80, wantRegression: false, wantDelta: -0.20},
	}

	d, err := New(0.10, nil)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := currentReport(map[string]*report.BenchmarkEntry{
				"poseidon2_hash": {
					Latency:    &report.MetricSample{Value: tt.current, Unit: "ns"},
					Iterations: 100,
				},
			})

			decisions, err := d.Detect(rep, base)
			require.NoError(t, err)
			require.Len(t, decisions, 1)

			assert.Equal(t, tt.wantRegression, decisions[0].IsRegression)
			assert.InDelta(t, tt.wantDelta, decisions[0].RelativeDelta, 1e-9)
			assert.Equal(t, LowerIsBetter, decisions[0].Direction)
		})
	}
}

func TestDetect_ThroughputDirectionality(t *testing.T) {
	// Baseline throughput 1000 ops/s, threshold 0.10.
	base := baseline.Baseline{
		"msm_g1": {report.MetricThroughput: 1000},
	}

	tests := []struct {
		name           string
		current        float64
		wantRegression bool
	}{
		{name: "15% lower regresses", current: 850, wantRegression: true},
		{name: "5% lower passes", current: 950, wantRegression: false},
		{name: "higher passes", current: 1200, wantRegression: false},
	}

	d, err := New(0.10, nil)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := currentReport(map[string]*report.BenchmarkEntry{
				"msm_g1": {
					Throughput: &report.MetricSample{Value: tt.current, Unit: "ops/s"},
					Iterations: 100,
				},
			})

			decisions, err := d.Detect(rep, base)
			require.NoError(t, err)
			require.Len(t, decisions, 1)
			assert.Equal(t, tt.wantRegression, decisions[0].IsRegression)
		})
	}
}

func TestDetect_ZeroBaseline(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	t.Run("latency appearing from zero regresses", func(t *testing.T) {
		base := baseline.Baseline{"ntt": {report.MetricLatency: 0}}
		rep := currentReport(map[string]*report.BenchmarkEntry{
			"ntt": {
				Latency:    &report.MetricSample{Value: 5, Unit: "ns"},
				Iterations: 1,
			},
		})

		decisions, err := d.Detect(rep, base)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.True(t, decisions[0].IsRegression)
		assert.True(t, math.IsInf(decisions[0].RelativeDelta, 1))
	})

	t.Run("throughput appearing from zero never regresses", func(t *testing.T) {
		base := baseline.Baseline{"ntt": {report.MetricThroughput: 0}}
		rep := currentReport(map[string]*report.BenchmarkEntry{
			"ntt": {
				Throughput: &report.MetricSample{Value: 5, Unit: "ops/s"},
				Iterations: 1,
			},
		})

		decisions, err := d.Detect(rep, base)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.False(t, decisions[0].IsRegression)
	})

	t.Run("zero to zero is no change", func(t *testing.T) {
		base := baseline.Baseline{"ntt": {report.MetricLatency: 0}}
		rep := currentReport(map[string]*report.BenchmarkEntry{
			"ntt": {
				Latency:    &report.MetricSample{Value: 0, Unit: "ns"},
				Iterations: 1,
			},
		})

		decisions, err := d.Detect(rep, base)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.False(t, decisions[0].IsRegression)
		assert.InDelta(t, 0, decisions[0].RelativeDelta, 1e-9)
	})
}

func TestDetect_NewBenchmarkNoDecision(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	rep := currentReport(map[string]*report.BenchmarkEntry{
		"brand_new": {
			Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
			Iterations: 1,
		},
	})

	decisions, err := d.Detect(rep, baseline.Baseline{})
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestDetect_MetricWithoutBaselineNoDecision(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	base := baseline.Baseline{
		"poseidon2_hash": {report.MetricLatency: 100},
	}

	rep := currentReport(map[string]*report.BenchmarkEntry{
		"poseidon2_hash": {
			Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
			Throughput: &report.MetricSample{Value: 500, Unit: "ops/s"},
			Iterations: 1,
		},
	})

	decisions, err := d.Detect(rep, base)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, report.MetricLatency, decisions[0].Metric)
}

func TestDetect_UndeclaredDirection(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	// Baseline carries a metric the detector has no direction for. The
	// entry metadata can only carry the three schema metrics, so build
	// the baseline directly.
	base := baseline.Baseline{
		"poseidon2_hash": {report.MetricLatency: 100},
		"prover":         {"proof_size": 2048},
	}

	rep := currentReport(map[string]*report.BenchmarkEntry{
		"poseidon2_hash": {
			Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
			Iterations: 1,
		},
	})

	// Schema metrics all have directions; this still works.
	_, err = d.Detect(rep, base)
	assert.NoError(t, err)

	// A declared custom direction is honored.
	d2, err := New(0.10, map[string]Direction{"proof_size": LowerIsBetter})
	require.NoError(t, err)

	_, err = d2.Detect(rep, base)
	assert.NoError(t, err)
}

func TestDetect_Improvements(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	base := baseline.Baseline{
		"poseidon2_hash": {
			report.MetricLatency:    100,
			report.MetricThroughput: 1000,
		},
	}

	rep := currentReport(map[string]*report.BenchmarkEntry{
		"poseidon2_hash": {
			Latency:    &report.MetricSample{Value: 80, Unit: "ns"},
			Throughput: &report.MetricSample{Value: 1250, Unit: "ops/s"},
			Iterations: 1,
		},
	})

	decisions, err := d.Detect(rep, base)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	for _, decision := range decisions {
		assert.False(t, decision.IsRegression)
		assert.True(t, decision.IsImprovement)
	}
}

func TestDetect_StableOrdering(t *testing.T) {
	d, err := New(0.10, nil)
	require.NoError(t, err)

	base := baseline.Baseline{
		"bbb": {report.MetricLatency: 100, report.MetricThroughput: 100},
		"aaa": {report.MetricLatency: 100},
	}

	rep := currentReport(map[string]*report.BenchmarkEntry{
		"bbb": {
			Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
			Throughput: &report.MetricSample{Value: 100, Unit: "ops/s"},
			Iterations: 1,
		},
		"aaa": {
			Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
			Iterations: 1,
		},
	})

	decisions, err := d.Detect(rep, base)
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	assert.Equal(t, "aaa", decisions[0].Benchmark)
	assert.Equal(t, "bbb", decisions[1].Benchmark)
	assert.Equal(t, report.MetricLatency, decisions[1].Metric)
	assert.Equal(t, report.MetricThroughput, decisions[2].Metric)
}

func TestDecision_MarshalInfiniteDelta(t *testing.T) {
	decision := Decision{
		Benchmark:     "ntt",
		Metric:        report.MetricLatency,
		Current:       5,
		Baseline:      0,
		RelativeDelta: math.Inf(1),
		IsRegression:  true,
		Direction:     LowerIsBetter,
	}

	data, err := json.Marshal(decision)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"relative_delta":null`)
	assert.Contains(t, string(data), `"is_regression":true`)
}
