package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fractalyze/perfgate/pkg/dashboard/store"
	"github.com/fractalyze/perfgate/pkg/detector"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// runSummary is the list view of a run record.
type runSummary struct {
	ID             uint      `json:"id"`
	Implementation string    `json:"implementation"`
	CommitSHA      string    `json:"commit_sha"`
	Timestamp      time.Time `json:"timestamp"`
	HasRegression  bool      `json:"has_regression"`
	ChangeType     string    `json:"change_type"`
}

// runDetail expands the stored JSON blobs into structured fields.
type runDetail struct {
	runSummary

	Decisions        []detector.Decision `json:"decisions"`
	ValidationErrors []string            `json:"validation_errors"`
}

func summarize(rec *store.RunRecord) runSummary {
	return runSummary{
		ID:             rec.ID,
		Implementation: rec.Implementation,
		CommitSHA:      rec.CommitSHA,
		Timestamp:      rec.Timestamp,
		HasRegression:  rec.HasRegression,
		ChangeType:     rec.ChangeType,
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListImplementations returns the distinct implementations seen.
func (s *server) handleListImplementations(
	w http.ResponseWriter, r *http.Request,
) {
	implementations, err := s.store.ListImplementations(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list implementations")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing implementations"})

		return
	}

	if implementations == nil {
		implementations = []string{}
	}

	writeJSON(w, http.StatusOK, implementations)
}

// handleListRuns returns recent runs, optionally filtered by the
// implementation query parameter and bounded by limit.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return
		}

		limit = parsed
	}

	runs, err := s.store.ListRuns(
		r.Context(), r.URL.Query().Get("implementation"), limit,
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs"})

		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for i := range runs {
		summaries = append(summaries, summarize(&runs[i]))
	}

	writeJSON(w, http.StatusOK, summaries)
}

// handleGetRun returns a single run with its decisions expanded.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid run id"})

		return
	}

	rec, err := s.store.GetRun(r.Context(), uint(id))
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	detail := runDetail{
		runSummary:       summarize(rec),
		Decisions:        []detector.Decision{},
		ValidationErrors: []string{},
	}

	if rec.DecisionsJSON != "" {
		if err := json.Unmarshal(
			[]byte(rec.DecisionsJSON), &detail.Decisions,
		); err != nil {
			s.log.WithError(err).WithField("id", rec.ID).
				Warn("Failed to decode stored decisions")
		}
	}

	if rec.ValidationErrorsJSON != "" {
		if err := json.Unmarshal(
			[]byte(rec.ValidationErrorsJSON), &detail.ValidationErrors,
		); err != nil {
			s.log.WithError(err).WithField("id", rec.ID).
				Warn("Failed to decode stored validation errors")
		}
	}

	writeJSON(w, http.StatusOK, detail)
}
