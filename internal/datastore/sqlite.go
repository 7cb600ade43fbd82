package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is logged as slow.
const DefaultSlowQueryThreshold = 1 * time.Second

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Path string
}

// Open creates the database file if needed and migrates the archive tables.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return validationError("archive path must not be empty", "path", store.Path)
	}
	if store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(store.Path), 0o755); err != nil {
			return dbError(fmt.Errorf("failed to create archive directory: %w", err), "archive_open", 0, "path", store.Path)
		}
	}

	gormLogger := logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(store.Path+"?_foreign_keys=on"), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "archive_open", 0, "path", store.Path)
	}

	if store.Path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return dbError(err, "archive_open", 0, "path", store.Path)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	return performAutoMigration(db, "SQLite", store.Path)
}

// Close closes the underlying connection pool.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "archive_close", 0)
	}
	store.DB = nil
	return sqlDB.Close()
}
