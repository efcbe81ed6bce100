package report

import (
	"fmt"
	"math"
)

// SchemaError indicates a malformed or incomplete benchmark report.
// Field names the offending field path.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}

	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Reason)
}

// TestVectorError indicates an unverified test vector. The attached
// performance numbers are meaningless, so this fails validation outright
// rather than feeding into regression detection.
type TestVectorError struct {
	Benchmark string
}

func (e *TestVectorError) Error() string {
	return fmt.Sprintf("test vector verification failed for benchmark %q", e.Benchmark)
}

// Validator validates a parsed benchmark report. A report must pass all
// configured validators before any comparison runs; there is no partial
// acceptance of individual benchmark entries.
type Validator interface {
	Validate(rep *BenchmarkReport) error
}

// SchemaValidator checks the report against the required structure:
// non-empty metadata, non-empty benchmarks, and per-entry metric sanity.
type SchemaValidator struct{}

// Validate checks required fields and metric value constraints.
func (v *SchemaValidator) Validate(rep *BenchmarkReport) error {
	if rep.Metadata.Implementation == "" {
		return &SchemaError{Field: "metadata.implementation", Reason: "required"}
	}

	if rep.Metadata.CommitSHA == "" {
		return &SchemaError{Field: "metadata.commit_sha", Reason: "required"}
	}

	if rep.Metadata.Timestamp.IsZero() {
		return &SchemaError{Field: "metadata.timestamp", Reason: "required"}
	}

	if len(rep.Benchmarks) == 0 {
		return &SchemaError{Field: "benchmarks", Reason: "must contain at least one benchmark"}
	}

	for _, name := range rep.BenchmarkNames() {
		entry := rep.Benchmarks[name]
		if entry == nil {
			return &SchemaError{
				Field:  fmt.Sprintf("benchmarks.%s", name),
				Reason: "entry is null",
			}
		}

		if err := v.validateEntry(name, entry); err != nil {
			return err
		}
	}

	return nil
}

func (v *SchemaValidator) validateEntry(name string, entry *BenchmarkEntry) error {
	if entry.Iterations < 0 {
		return &SchemaError{
			Field:  fmt.Sprintf("benchmarks.%s.iterations", name),
			Reason: "must be >= 0",
		}
	}

	metrics := entry.Metrics()
	if len(metrics) == 0 {
		return &SchemaError{
			Field:  fmt.Sprintf("benchmarks.%s", name),
			Reason: "at least one metric (latency, throughput) is required",
		}
	}

	for metric, sample := range metrics {
		field := fmt.Sprintf("benchmarks.%s.%s", name, metric)

		if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			return &SchemaError{Field: field + ".value", Reason: "must be a finite number"}
		}

		if sample.Value < 0 {
			return &SchemaError{Field: field + ".value", Reason: "must be non-negative"}
		}

		if sample.Unit == "" {
			return &SchemaError{Field: field + ".unit", Reason: "must be a non-empty string"}
		}
	}

	return nil
}

// TestVectorValidator asserts that every benchmark carrying test vectors
// has them verified. Absence of test vectors means "not applicable" and
// passes.
type TestVectorValidator struct{}

// Validate fails with a TestVectorError naming the first benchmark whose
// vectors did not verify.
func (v *TestVectorValidator) Validate(rep *BenchmarkReport) error {
	for _, name := range rep.BenchmarkNames() {
		entry := rep.Benchmarks[name]
		if entry == nil || entry.TestVectors == nil {
			continue
		}

		if !entry.TestVectors.Verified {
			return &TestVectorError{Benchmark: name}
		}
	}

	return nil
}

// ComposedValidator runs multiple validators in sequence.
type ComposedValidator struct {
	validators []Validator
}

// NewComposedValidator creates a validator that runs multiple validators
// in sequence.
func NewComposedValidator(validators ...Validator) *ComposedValidator {
	return &ComposedValidator{
		validators: validators,
	}
}

// Validate runs all validators in sequence, returning the first error
// encountered.
func (v *ComposedValidator) Validate(rep *BenchmarkReport) error {
	for _, validator := range v.validators {
		if err := validator.Validate(rep); err != nil {
			return err
		}
	}

	return nil
}

// DefaultValidator returns the validator used for incoming reports:
// schema checks followed by test vector verification.
func DefaultValidator() Validator {
	return NewComposedValidator(
		&SchemaValidator{},
		&TestVectorValidator{},
	)
}
