package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yegors/voice-agent/pkg/logger"
	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at dbPath and applies connection settings.
// The parent directory is created when missing.
func Open(dbPath string, log *logger.Logger) (*sql.DB, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct {
		stmt string
		name string
	}{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}

	return db, nil
}
