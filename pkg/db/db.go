package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotInitialized indicates a store operation before Open.
	ErrNotInitialized = errors.New("database store not initialized")
	// ErrMigrationFailed indicates an unappliable schema step.
	// Startup must not proceed past it.
	ErrMigrationFailed = errors.New("database migration failed")
)

// Store wraps the single sqlite database file backing all
// relational state. One Store is constructed at boot and
// injected into every consumer; there is no package-level
// connection.
type Store struct {
	db *gorm.DB

	// sqlite WAL already serializes writers, but funnelling
	// writes through one mutex keeps gorm from ever queueing
	// on SQLITE_BUSY under load.
	writeMu sync.Mutex
}

// Open opens (or creates) the database file with WAL journaling,
// relaxed-but-nonzero synchronous durability, and foreign key
// enforcement.
func Open(path string) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if err := gdb.Exec(pragma).Error; err != nil {
			return nil, err
		}
	}

	return &Store{db: gdb}, nil
}

// Conn exposes the underlying gorm handle for repository-style
// consumers. Callers must have obtained the Store from Open.
func (s *Store) Conn() (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// Read executes fn inside a read-only transaction. Readers never
// block on the writer under WAL.
func (s *Store) Read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{ReadOnly: true})
}

// Write executes fn inside a write transaction. One write
// transaction is in flight at a time; a crash mid-write leaves
// either the old or the new state visible, never a mix.
func (s *Store) Write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.WithContext(ctx).Transaction(fn)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
