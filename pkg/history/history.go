// Package history persists bounded rolling windows of benchmark reports,
// one document per implementation. Backends read and write the whole
// document at once; callers must serialize Load/Append per implementation
// (single CI job per implementation, or an external lock).
package history

import (
	"context"
	"sort"

	"github.com/fractalyze/perfgate/pkg/report"
)

// Window is the ordered sequence of the most recent benchmark reports
// for one implementation, oldest first.
type Window struct {
	Reports []*report.BenchmarkReport `json:"reports"`
}

// Len returns the number of reports in the window.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}

	return len(w.Reports)
}

// Insert adds a report, keeps the window sorted by run timestamp
// ascending, and evicts from the front until at most max reports remain.
func (w *Window) Insert(rep *report.BenchmarkReport, max int) {
	w.Reports = append(w.Reports, rep)

	sort.SliceStable(w.Reports, func(i, j int) bool {
		return w.Reports[i].Metadata.Timestamp.Before(w.Reports[j].Metadata.Timestamp)
	})

	if max > 0 && len(w.Reports) > max {
		w.Reports = w.Reports[len(w.Reports)-max:]
	}
}

// Store provides access to historical benchmark reports.
type Store interface {
	// Load returns the history window for an implementation. A missing
	// history yields an empty window, not an error.
	Load(ctx context.Context, implementation string) (*Window, error)

	// Append inserts a validated report into the implementation's window
	// and persists the result, evicting the oldest reports beyond the
	// configured rolling window size.
	Append(ctx context.Context, implementation string, rep *report.BenchmarkReport) error
}
