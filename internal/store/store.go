// Package store persists revaluation requests, answer keys and marks.
//
// Request writes are partial and version checked: every successful write
// bumps Version, and a caller that supplies an expected version gets
// types.ErrConcurrentModification when another writer got there first.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/smartexam/reval/internal/events"
	"github.com/smartexam/reval/internal/types"
)

// Config configures a Store.
type Config struct {
	Driver    string // "postgres" or "sqlite"
	DSN       string
	Publisher events.Publisher // Receives lifecycle events after commit (optional)
	Logger    *slog.Logger
}

// Store is the gorm-backed persistence layer.
type Store struct {
	db        *gorm.DB
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Open connects to the configured database.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.NewSlogLogger(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, cfg.Publisher, logger), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, publisher events.Publisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&types.Mark{},
		&types.RevaluationRequest{},
		&types.AnswerKey{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateMark inserts a mark row.
func (s *Store) CreateMark(ctx context.Context, m *types.Mark) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create mark: %w", err)
	}
	return nil
}

// GetMark loads a mark by id.
func (s *Store) GetMark(ctx context.Context, id int64) (*types.Mark, error) {
	var m types.Mark
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "mark %d", id)
	}
	return &m, nil
}

func (s *Store) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed", "type", ev.Type, "request_id", ev.RequestID, "error", err)
	}
}

// notFound maps gorm's missing-row error to types.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, types.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
