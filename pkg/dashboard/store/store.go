// Package store persists benchmark run verdicts for the dashboard API.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

// Store provides persistence for benchmark run history.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// RecordRun persists a verdict as a run record.
	RecordRun(ctx context.Context, v *verdict.Report) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first. An empty
	// implementation matches all implementations.
	ListRuns(ctx context.Context, implementation string, limit int) ([]RunRecord, error)

	// GetRun returns a single run by id.
	GetRun(ctx context.Context, id uint) (*RunRecord, error)

	// ListImplementations returns the distinct implementations seen,
	// sorted ascending.
	ListImplementations(ctx context.Context) ([]string, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

const defaultListLimit = 50

type store struct {
	log logrus.FieldLogger
	cfg *config.DashboardDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DashboardDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "dashboard_store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&RunRecord{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) RecordRun(
	ctx context.Context, v *verdict.Report,
) (*RunRecord, error) {
	decisions, err := json.Marshal(v.Decisions)
	if err != nil {
		return nil, fmt.Errorf("marshaling decisions: %w", err)
	}

	validationErrors, err := json.Marshal(v.ValidationErrors)
	if err != nil {
		return nil, fmt.Errorf("marshaling validation errors: %w", err)
	}

	rec := &RunRecord{
		Implementation:       v.Implementation,
		CommitSHA:            v.CommitSHA,
		Timestamp:            v.GeneratedAt,
		HasRegression:        v.HasRegression,
		ChangeType:           string(v.ChangeType),
		DecisionsJSON:        string(decisions),
		ValidationErrorsJSON: string(validationErrors),
		CreatedAt:            time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("creating run record: %w", err)
	}

	return rec, nil
}

func (s *store) ListRuns(
	ctx context.Context, implementation string, limit int,
) ([]RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit)

	if implementation != "" {
		q = q.Where("implementation = ?", implementation)
	}

	var runs []RunRecord
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

func (s *store) GetRun(ctx context.Context, id uint) (*RunRecord, error) {
	var run RunRecord
	if err := s.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("getting run by id: %w", err)
	}

	return &run, nil
}

func (s *store) ListImplementations(ctx context.Context) ([]string, error) {
	var implementations []string
	if err := s.db.WithContext(ctx).
		Model(&RunRecord{}).
		Distinct("implementation").
		Order("implementation ASC").
		Pluck("implementation", &implementations).Error; err != nil {
		return nil, fmt.Errorf("listing implementations: %w", err)
	}

	return implementations, nil
}
