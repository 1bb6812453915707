package persistence

import (
	"attendees/internal/persistence/interfaces"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS snapshots (
	name     TEXT PRIMARY KEY,
	data     BLOB NOT NULL,
	saved_at INTEGER NOT NULL
)`

// SQLiteBackend keeps snapshots as rows keyed by name.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (interfaces.BackendInterface, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createSnapshotsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Save(name string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (name, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		name, data, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteBackend) Load(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLiteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
