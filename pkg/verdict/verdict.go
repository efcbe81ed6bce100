// Package verdict aggregates per-benchmark decisions into the final
// has-regression determination consumed by CI, alerting, and dashboards.
package verdict

import (
	"time"

	"github.com/fractalyze/perfgate/pkg/detector"
	"github.com/fractalyze/perfgate/pkg/report"
)

// ChangeType classifies the overall movement of a run against its
// baseline.
type ChangeType string

const (
	// ChangeNone means no metric moved beyond the threshold.
	ChangeNone ChangeType = ""

	// ChangeRegression means at least one metric regressed and none
	// improved.
	ChangeRegression ChangeType = "regression"

	// ChangeImprovement means at least one metric improved and none
	// regressed.
	ChangeImprovement ChangeType = "improvement"

	// ChangeMixed means some metrics regressed while others improved.
	ChangeMixed ChangeType = "mixed"
)

// Report is the terminal output of the regression engine.
//
// HasRegression is forced false when ValidationErrors is non-empty: a
// regression claim on unverified data would be meaningless. Callers must
// treat non-empty ValidationErrors as build-should-fail regardless of
// HasRegression.
type Report struct {
	HasRegression    bool                `json:"has_regression"`
	ChangeType       ChangeType          `json:"change_type,omitempty"`
	Decisions        []detector.Decision `json:"decisions"`
	ValidationErrors []string            `json:"validation_errors"`
	CommitSHA        string              `json:"commit_sha"`
	Implementation   string              `json:"implementation"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// Valid reports whether the underlying benchmark report passed
// validation.
func (r *Report) Valid() bool {
	return len(r.ValidationErrors) == 0
}

// Assemble builds the verdict from the detector's decisions and any
// validation errors collected before comparison.
func Assemble(
	decisions []detector.Decision,
	validationErrors []string,
	meta report.RunMetadata,
) *Report {
	rep := &Report{
		Decisions:        decisions,
		ValidationErrors: validationErrors,
		CommitSHA:        meta.CommitSHA,
		Implementation:   meta.Implementation,
		GeneratedAt:      time.Now().UTC(),
	}

	if rep.Decisions == nil {
		rep.Decisions = []detector.Decision{}
	}

	if rep.ValidationErrors == nil {
		rep.ValidationErrors = []string{}
	}

	if !rep.Valid() {
		return rep
	}

	var regressed, improved bool

	for _, decision := range decisions {
		if decision.IsRegression {
			regressed = true
		}

		if decision.IsImprovement {
			improved = true
		}
	}

	rep.HasRegression = regressed

	switch {
	case regressed && improved:
		rep.ChangeType = ChangeMixed
	case regressed:
		rep.ChangeType = ChangeRegression
	case improved:
		rep.ChangeType = ChangeImprovement
	default:
		rep.ChangeType = ChangeNone
	}

	return rep
}
