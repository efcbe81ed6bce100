package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fractalyze/perfgate/pkg/report"
	"github.com/sirupsen/logrus"
)

const historyFilename = "history.json"

// Compile-time interface check.
var _ Store = (*localStore)(nil)

type localStore struct {
	log    logrus.FieldLogger
	dir    string
	window int
}

// NewLocalStore creates a Store backed by one JSON document per
// implementation under dir, bounded to window reports.
func NewLocalStore(log logrus.FieldLogger, dir string, window int) Store {
	return &localStore{
		log:    log.WithField("component", "history-local"),
		dir:    dir,
		window: window,
	}
}

func (s *localStore) path(implementation string) string {
	return filepath.Join(s.dir, implementation, historyFilename)
}

// Load reads {dir}/{implementation}/history.json. A missing file returns
// an empty window.
func (s *localStore) Load(_ context.Context, implementation string) (*Window, error) {
	data, err := os.ReadFile(s.path(implementation))
	if err != nil {
		if os.IsNotExist(err) {
			return &Window{}, nil
		}

		return nil, fmt.Errorf("reading history for %s: %w", implementation, err)
	}

	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing history for %s: %w", implementation, err)
	}

	return &w, nil
}

// Append performs the read-modify-write of the history document.
func (s *localStore) Append(
	ctx context.Context, implementation string, rep *report.BenchmarkReport,
) error {
	w, err := s.Load(ctx, implementation)
	if err != nil {
		return err
	}

	w.Insert(rep, s.window)

	dir := filepath.Dir(s.path(implementation))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	if err := os.WriteFile(s.path(implementation), data, 0644); err != nil {
		return fmt.Errorf("writing history for %s: %w", implementation, err)
	}

	s.log.WithFields(logrus.Fields{
		"implementation": implementation,
		"window_size":    w.Len(),
	}).Debug("History appended")

	return nil
}
