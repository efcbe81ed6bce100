package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/detector"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	s := NewStore(logrus.New(), &config.DashboardDatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "dashboard.db"),
		},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	return s
}

func makeVerdict(impl, commit string, regressed bool, ts time.Time) *verdict.Report {
	change := verdict.ChangeNone
	if regressed {
		change = verdict.ChangeRegression
	}

	return &verdict.Report{
		HasRegression:  regressed,
		ChangeType:     change,
		Implementation: impl,
		CommitSHA:      commit,
		GeneratedAt:    ts,
		Decisions: []detector.Decision{
			{
				Benchmark:     "poseidon_hash",
				Metric:        "latency",
				Current:       125,
				Baseline:      100,
				RelativeDelta: 0.25,
				IsRegression:  regressed,
				Direction:     detector.LowerIsBetter,
			},
		},
		ValidationErrors: []string{},
	}
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := NewStore(logrus.New(), &config.DashboardDatabaseConfig{Driver: "mysql"})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestStore_RecordAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.RecordRun(ctx, makeVerdict("fractalyze-go", "abc1234", true, time.Now().UTC()))
	require.NoError(t, err)
	require.NotZero(t, rec.ID)

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, "fractalyze-go", got.Implementation)
	assert.Equal(t, "abc1234", got.CommitSHA)
	assert.True(t, got.HasRegression)
	assert.Equal(t, string(verdict.ChangeRegression), got.ChangeType)

	var decisions []detector.Decision
	require.NoError(t, json.Unmarshal([]byte(got.DecisionsJSON), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "poseidon_hash", decisions[0].Benchmark)
}

func TestStore_GetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), 999)
	require.Error(t, err)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, commit := range []string{"commit-a", "commit-b", "commit-c"} {
		_, err := s.RecordRun(ctx, makeVerdict(
			"fractalyze-go", commit, false, base.Add(time.Duration(i)*time.Hour),
		))
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, "fractalyze-go", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "commit-c", runs[0].CommitSHA)
	assert.Equal(t, "commit-a", runs[2].CommitSHA)
}

func TestStore_ListRunsFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.RecordRun(ctx, makeVerdict("fractalyze-go", "go-1", false, now))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, makeVerdict("fractalyze-rs", "rs-1", false, now.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, makeVerdict("fractalyze-rs", "rs-2", false, now.Add(2*time.Minute)))
	require.NoError(t, err)

	rs, err := s.ListRuns(ctx, "fractalyze-rs", 1)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "rs-2", rs[0].CommitSHA)

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_ListImplementations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.RecordRun(ctx, makeVerdict("fractalyze-rs", "rs-1", false, now))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, makeVerdict("fractalyze-go", "go-1", false, now))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, makeVerdict("fractalyze-go", "go-2", false, now))
	require.NoError(t, err)

	impls, err := s.ListImplementations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fractalyze-go", "fractalyze-rs"}, impls)
}
