package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Setting keys
const (
	KeyAgentID        = "agent_id"
	KeyBackendBaseURL = "backend_base_url"
)

// SettingsStorage persists the agent settings edited on the admin page
type SettingsStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSettingsStorage creates the settings table if needed
func NewSettingsStorage(db *sql.DB, log *logger.Logger) (*SettingsStorage, error) {
	s := &SettingsStorage{
		db:     db,
		logger: log.Named("sqlite-settings"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// AgentConfig returns the stored agent settings. found is false when nothing
// was saved yet.
func (s *SettingsStorage) AgentConfig() (cfg call.AgentConfig, found bool, err error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE key IN (?, ?)`,
		KeyAgentID, KeyBackendBaseURL)
	if err != nil {
		return cfg, false, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return cfg, false, fmt.Errorf("failed to scan setting: %w", err)
		}
		found = true
		switch key {
		case KeyAgentID:
			cfg.AgentID = value
		case KeyBackendBaseURL:
			cfg.BackendBaseURL = value
		}
	}
	if err := rows.Err(); err != nil {
		return cfg, false, fmt.Errorf("failed to read settings: %w", err)
	}
	return cfg, found, nil
}

// SaveAgentConfig stores both agent settings in one transaction
func (s *SettingsStorage) SaveAgentConfig(cfg call.AgentConfig) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		KeyAgentID:        cfg.AgentID,
		KeyBackendBaseURL: cfg.BackendBaseURL,
	} {
		_, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}

	s.logger.Info("Agent settings saved",
		logger.String("agent_id", cfg.AgentID),
		logger.String("backend_base_url", cfg.BackendBaseURL))
	return nil
}

// LoadOrSeed returns the stored settings, saving defaults first when the
// store is empty
func (s *SettingsStorage) LoadOrSeed(defaults call.AgentConfig) (call.AgentConfig, error) {
	cfg, found, err := s.AgentConfig()
	if err != nil {
		return call.AgentConfig{}, err
	}
	if found {
		return cfg, nil
	}
	if err := s.SaveAgentConfig(defaults); err != nil {
		return call.AgentConfig{}, err
	}
	return defaults, nil
}

// UpdatedAt returns when the agent settings were last saved
func (s *SettingsStorage) UpdatedAt() (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRow(`SELECT MAX(updated_at) FROM settings`).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("failed to query settings timestamp: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse settings timestamp: %w", err)
	}
	return t, nil
}
