// Package baseline derives per-benchmark, per-metric baselines from a
// rolling history window. Baselines are computed on demand and never
// persisted by the detection pipeline; the standalone baseline document
// exists for inspection and dashboards.
package baseline

import (
	"math"

	"github.com/fractalyze/perfgate/pkg/history"
	"github.com/fractalyze/perfgate/pkg/report"
)

// MinSamples is the minimum number of historical reports needed before
// a rolling-average baseline document is produced. Below this the most
// recent report stands in as the baseline.
const MinSamples = 2

// Baseline maps benchmark name to metric name to the mean value over
// the window. A metric with zero historical samples has no entry.
type Baseline map[string]map[string]float64

// Value returns the baseline for a benchmark/metric pair.
func (b Baseline) Value(benchmark, metric string) (float64, bool) {
	metrics, ok := b[benchmark]
	if !ok {
		return 0, false
	}

	v, ok := metrics[metric]

	return v, ok
}

// Compute calculates the arithmetic mean of every metric sample present
// in the window, per benchmark. Reports missing a sample for some metric
// simply contribute nothing to that mean. Pure function of its input:
// repeated calls on the same window yield identical results.
func Compute(w *history.Window) Baseline {
	if w.Len() == 0 {
		return Baseline{}
	}

	sums := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)

	for _, rep := range w.Reports {
		for name, entry := range rep.Benchmarks {
			if entry == nil {
				continue
			}

			for metric, sample := range entry.Metrics() {
				if sums[name] == nil {
					sums[name] = make(map[string]float64, 3)
					counts[name] = make(map[string]int, 3)
				}

				sums[name][metric] += sample.Value
				counts[name][metric]++
			}
		}
	}

	base := make(Baseline, len(sums))

	for name, metrics := range sums {
		base[name] = make(map[string]float64, len(metrics))
		for metric, sum := range metrics {
			base[name][metric] = sum / float64(counts[name][metric])
		}
	}

	return base
}

// DocumentMetadata extends the run metadata of the most recent report
// with baseline provenance fields.
type DocumentMetadata struct {
	report.RunMetadata
	BaselineType string `json:"baseline_type,omitempty"`
	SampleCount  int    `json:"sample_count,omitempty"`
}

// Document is the serialized baseline file consumed by dashboards and
// by ad-hoc inspection. Units and auxiliary fields come from the most
// recent sample of each benchmark.
type Document struct {
	Metadata   DocumentMetadata                  `json:"metadata"`
	Benchmarks map[string]*report.BenchmarkEntry `json:"benchmarks"`
}

// BuildDocument produces a baseline document from the window. With fewer
// than MinSamples reports the most recent report is used verbatim; an
// empty window yields nil.
func BuildDocument(w *history.Window) *Document {
	if w.Len() == 0 {
		return nil
	}

	latest := w.Reports[w.Len()-1]

	if w.Len() < MinSamples {
		return &Document{
			Metadata:   DocumentMetadata{RunMetadata: latest.Metadata},
			Benchmarks: latest.Benchmarks,
		}
	}

	base := Compute(w)

	doc := &Document{
		Metadata: DocumentMetadata{
			RunMetadata:  latest.Metadata,
			BaselineType: "rolling_average",
			SampleCount:  w.Len(),
		},
		Benchmarks: make(map[string]*report.BenchmarkEntry, len(base)),
	}

	for name, metrics := range base {
		sample := latestEntry(w, name)
		if sample == nil {
			continue
		}

		entry := &BenchmarkEntryBuilder{sample: sample}

		for metric, mean := range metrics {
			entry.set(metric, round2(mean))
		}

		doc.Benchmarks[name] = entry.build()
	}

	return doc
}

// latestEntry returns the most recent entry for a benchmark name.
func latestEntry(w *history.Window, name string) *report.BenchmarkEntry {
	for i := w.Len() - 1; i >= 0; i-- {
		if entry, ok := w.Reports[i].Benchmarks[name]; ok && entry != nil {
			return entry
		}
	}

	return nil
}

// BenchmarkEntryBuilder assembles a baseline entry, taking units and
// auxiliary fields from the sample entry.
type BenchmarkEntryBuilder struct {
	sample     *report.BenchmarkEntry
	latency    *float64
	throughput *float64
	memory     *float64
}

func (b *BenchmarkEntryBuilder) set(metric string, value float64) {
	switch metric {
	case report.MetricLatency:
		b.latency = &value
	case report.MetricThroughput:
		b.throughput = &value
	case report.MetricMemory:
		b.memory = &value
	}
}

func (b *BenchmarkEntryBuilder) build() *report.BenchmarkEntry {
	entry := &report.BenchmarkEntry{
		Iterations:  b.sample.Iterations,
		TestVectors: b.sample.TestVectors,
		Metadata:    b.sample.Metadata,
	}

	entry.Latency = b.metricSample(b.latency, b.sample.Latency, "ns")
	entry.Throughput = b.metricSample(b.throughput, b.sample.Throughput, "ops/s")
	entry.Memory = b.metricSample(b.memory, b.sample.Memory, "bytes")

	return entry
}

func (b *BenchmarkEntryBuilder) metricSample(
	value *float64, sample *report.MetricSample, defaultUnit string,
) *report.MetricSample {
	if value == nil {
		return nil
	}

	unit := defaultUnit
	if sample != nil && sample.Unit != "" {
		unit = sample.Unit
	}

	return &report.MetricSample{Value: *value, Unit: unit}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
