package verdict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalyze/perfgate/pkg/baseline"
	"github.com/fractalyze/perfgate/pkg/detector"
	"github.com/fractalyze/perfgate/pkg/history"
	"github.com/fractalyze/perfgate/pkg/report"
)

func runMeta() report.RunMetadata {
	return report.RunMetadata{
		Implementation: "zkx-gpu",
		CommitSHA:      "abc1234",
		Timestamp:      time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
	}
}

func regression() detector.Decision {
	return detector.Decision{
		Benchmark:     "poseidon2_hash",
		Metric:        report.MetricLatency,
		Current:       115,
		Baseline:      100,
		RelativeDelta: 0.15,
		IsRegression:  true,
		Direction:     detector.LowerIsBetter,
	}
}

func improvement() detector.Decision {
	return detector.Decision{
		Benchmark:     "msm_g1",
		Metric:        report.MetricThroughput,
		Current:       1250,
		Baseline:      1000,
		RelativeDelta: 0.25,
		IsImprovement: true,
		Direction:     detector.HigherIsBetter,
	}
}

func TestAssemble_NoDecisions(t *testing.T) {
	v := Assemble(nil, nil, runMeta())

	assert.False(t, v.HasRegression)
	assert.Equal(t, ChangeNone, v.ChangeType)
	assert.True(t, v.Valid())
	assert.NotNil(t, v.Decisions)
	assert.NotNil(t, v.ValidationErrors)
	assert.Equal(t, "zkx-gpu", v.Implementation)
	assert.Equal(t, "abc1234", v.CommitSHA)
}

func TestAssemble_ChangeTypes(t *testing.T) {
	tests := []struct {
		name           string
		decisions      []detector.Decision
		wantRegression bool
		wantChange     ChangeType
	}{
		{
			name:           "regression only",
			decisions:      []detector.Decision{regression()},
			wantRegression: true,
			wantChange:     ChangeRegression,
		},
		{
			name:       "improvement only",
			decisions:  []detector.Decision{improvement()},
			wantChange: ChangeImprovement,
		},
		{
			name:           "mixed",
			decisions:      []detector.Decision{regression(), improvement()},
			wantRegression: true,
			wantChange:     ChangeMixed,
		},
		{
			name: "within threshold",
			decisions: []detector.Decision{{
				Benchmark:     "poseidon2_hash",
				Metric:        report.MetricLatency,
				Current:       104,
				Baseline:      100,
				RelativeDelta: 0.04,
				Direction:     detector.LowerIsBetter,
			}},
			wantChange: ChangeNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Assemble(tt.decisions, nil, runMeta())
			assert.Equal(t, tt.wantRegression, v.HasRegression)
			assert.Equal(t, tt.wantChange, v.ChangeType)
		})
	}
}

func TestAssemble_ValidationErrorsForceFalse(t *testing.T) {
	// Even with regressed decisions, validation errors force
	// has_regression to false. The caller fails the build on the
	// validation errors instead.
	v := Assemble(
		[]detector.Decision{regression()},
		[]string{"test vector verification failed for benchmark \"poseidon2_hash\""},
		runMeta(),
	)

	assert.False(t, v.HasRegression)
	assert.False(t, v.Valid())
	assert.Equal(t, ChangeNone, v.ChangeType)
}

func TestEndToEnd_RollingBaselineRegression(t *testing.T) {
	// History latencies 100, 110, 90 -> baseline 100. Current 125 at
	// threshold 0.10 -> delta 0.25 -> regression.
	w := &history.Window{}
	base := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)

	for i, latency := range []float64{100, 110, 90} {
		w.Insert(&report.BenchmarkReport{
			Metadata: report.RunMetadata{
				Implementation: "zkx-gpu",
				CommitSHA:      "old",
				Timestamp:      base.Add(time.Duration(i) * time.Hour),
			},
			Benchmarks: map[string]*report.BenchmarkEntry{
				"poseidon2_hash": {
					Latency:    &report.MetricSample{Value: latency, Unit: "ns"},
					Iterations: 100,
				},
			},
		}, 5)
	}

	computed := baseline.Compute(w)
	got, ok := computed.Value("poseidon2_hash", report.MetricLatency)
	require.True(t, ok)
	assert.InDelta(t, 100, got, 1e-9)

	current := &report.BenchmarkReport{
		Metadata: runMeta(),
		Benchmarks: map[string]*report.BenchmarkEntry{
			"poseidon2_hash": {
				Latency:    &report.MetricSample{Value: 125, Unit: "ns"},
				Iterations: 100,
			},
		},
	}

	d, err := detector.New(0.10, nil)
	require.NoError(t, err)

	decisions, err := d.Detect(current, computed)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.InDelta(t, 0.25, decisions[0].RelativeDelta, 1e-9)

	v := Assemble(decisions, nil, current.Metadata)
	assert.True(t, v.HasRegression)
	assert.Equal(t, ChangeRegression, v.ChangeType)
}

func TestEndToEnd_NoHistoryNoDecisions(t *testing.T) {
	// A valid report with no prior history produces an empty baseline,
	// no decisions, and has_regression=false.
	computed := baseline.Compute(&history.Window{})
	assert.Empty(t, computed)

	current := &report.BenchmarkReport{
		Metadata: runMeta(),
		Benchmarks: map[string]*report.BenchmarkEntry{
			"poseidon2_hash": {
				Latency:    &report.MetricSample{Value: 100, Unit: "ns"},
				Iterations: 100,
			},
		},
	}

	d, err := detector.New(0.10, nil)
	require.NoError(t, err)

	decisions, err := d.Detect(current, computed)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	v := Assemble(decisions, nil, current.Metadata)
	assert.False(t, v.HasRegression)
}
