// Package history keeps a record of instance sessions in a SQLite database.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// End reasons.
const (
	ReasonStopped   = "stopped"
	ReasonExited    = "exited"
	ReasonShutdown  = "shutdown"
	// ReasonAbandoned marks a session whose process died without ending it.
	ReasonAbandoned = "abandoned"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// Record is one instance session.
type Record struct {
	ID        string     `gorm:"primaryKey;size:36"`
	Instance  string     `gorm:"index;not null"`
	Port      string     `gorm:"size:5"`
	StartedAt time.Time  `gorm:"index;not null"`
	EndedAt   *time.Time `gorm:"index"`
	EndReason string     `gorm:"size:16"`
	ExitCode  *int       `gorm:"default:null"`
}

// TableName returns the table name for session records.
func (Record) TableName() string {
	return "sessions"
}

// Duration returns how long the session ran, or 0 while it is open.
func (r Record) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Store persists session records.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the history database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordStart inserts a new open session.
func (s *Store) RecordStart(ctx context.Context, rec Record) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// RecordEnd closes a session. exitCode is nil when the process was killed.
func (s *Store) RecordEnd(ctx context.Context, id, reason string, exitCode *int, endedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(map[string]any{
		"ended_at":   endedAt,
		"end_reason": reason,
		"exit_code":  exitCode,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record session end: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// OpenSession returns the newest session of instance that has not ended, or
// ErrNotFound.
func (s *Store) OpenSession(ctx context.Context, instance string) (Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("instance = ? AND ended_at IS NULL", instance).
		Order("started_at desc").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: no open session for %s", ErrNotFound, instance)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query open session: %w", err)
	}
	return rec, nil
}

// Abandon closes every open session of instance with ReasonAbandoned. It is
// used when a previous run died without recording its end.
func (s *Store) Abandon(ctx context.Context, instance string, endedAt time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Record{}).
		Where("instance = ? AND ended_at IS NULL", instance).
		Updates(map[string]any{
			"ended_at":   endedAt,
			"end_reason": ReasonAbandoned,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to abandon sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.find(ctx, s.db.WithContext(ctx), limit)
}

// ForInstance returns up to limit sessions of one instance, newest first.
func (s *Store) ForInstance(ctx context.Context, instance string, limit int) ([]Record, error) {
	return s.find(ctx, s.db.WithContext(ctx).Where("instance = ?", instance), limit)
}

func (s *Store) find(_ context.Context, q *gorm.DB, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []Record
	if err := q.Order("started_at desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
