package sync

import (
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"

	_ "github.com/mattn/go-sqlite3"
)

// Storage is the checkpoint store used by the fetch-and-sync engine:
// pagination cursors, completion dates and seen-markers, all keyed by fixed
// string constants or CRM record ids. It is eventually-consistent key-value
// storage with no transactional guarantees across keys.
type Storage interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Del(key string) error
}

// MemoryStorage is an in-process Storage for tests and for hosts that
// persist checkpoints themselves.
type MemoryStorage struct {
	mu     gosync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, exists := m.values[key]
	return v, exists, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Del(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SQLiteStorage is a durable Storage backed by a single sqlite database.
type SQLiteStorage struct {
	db *sql.DB
}

const checkpointsSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// OpenSQLiteStorage creates or opens the checkpoint database at path.
// Safe to call multiple times for the same path.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to checkpoint database: %w", err)
	}

	// sqlite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under the host's concurrent event handlers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(checkpointsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM checkpoints WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read checkpoint %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStorage) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Del(key string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %q: %w", key, err)
	}
	return nil
}
