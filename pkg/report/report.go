package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Metric names recognized out of the box. Any other metric carried in a
// report needs a direction declared by the caller before detection.
const (
	MetricLatency    = "latency"
	MetricThroughput = "throughput"
	MetricMemory     = "memory"
)

// Platform describes the machine a benchmark run was executed on.
type Platform struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
	CPUVendor string `json:"cpu_vendor"`
}

// MetricSample is a single measured quantity, e.g. latency in ns or
// throughput in ops/s.
type MetricSample struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// TestVectorCheck records whether a benchmark's fixed input/output pair
// matched. Hashes are computed by the benchmark command itself.
type TestVectorCheck struct {
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
	Verified   bool   `json:"verified"`
}

// BenchmarkEntry holds the measurements for a single named benchmark.
// At least one of Latency/Throughput/Memory must be present.
type BenchmarkEntry struct {
	Latency     *MetricSample    `json:"latency,omitempty"`
	Throughput  *MetricSample    `json:"throughput,omitempty"`
	Memory      *MetricSample    `json:"memory,omitempty"`
	Iterations  int64            `json:"iterations"`
	TestVectors *TestVectorCheck `json:"test_vectors,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// Metrics returns the samples present on the entry, keyed by metric name.
func (e *BenchmarkEntry) Metrics() map[string]*MetricSample {
	m := make(map[string]*MetricSample, 3)

	if e.Latency != nil {
		m[MetricLatency] = e.Latency
	}

	if e.Throughput != nil {
		m[MetricThroughput] = e.Throughput
	}

	if e.Memory != nil {
		m[MetricMemory] = e.Memory
	}

	return m
}

// RunMetadata identifies the run a report belongs to.
type RunMetadata struct {
	Implementation string    `json:"implementation"`
	Version        string    `json:"version"`
	CommitSHA      string    `json:"commit_sha"`
	Timestamp      time.Time `json:"timestamp"`
	Platform       Platform  `json:"platform"`
}

// BenchmarkReport is the parsed output of one benchmark run. Benchmark
// names are unique by construction (JSON object keys). Reports are
// treated as immutable once they pass validation.
type BenchmarkReport struct {
	Metadata   RunMetadata                `json:"metadata"`
	Benchmarks map[string]*BenchmarkEntry `json:"benchmarks"`
}

// BenchmarkNames returns the benchmark names sorted for deterministic
// iteration.
func (r *BenchmarkReport) BenchmarkNames() []string {
	names := make([]string, 0, len(r.Benchmarks))
	for name := range r.Benchmarks {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Parse decodes a raw benchmark report document. Structural validation
// beyond JSON well-formedness is left to the validators.
func Parse(data []byte) (*BenchmarkReport, error) {
	var rep BenchmarkReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, &SchemaError{Field: "", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	return &rep, nil
}
