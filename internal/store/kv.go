package store

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/studychat/internal/logging"
)

// Keys shared by every component that reads or writes the store.
const (
	KeyToken         = "token"
	KeyUsername      = "username"
	KeyActiveSession = "activeSessionId"
)

// Store is a durable key-value store. There are no transactions and no
// expiry; concurrent writers are last-writer-wins. Callers that change a
// value other components depend on must publish a notification after the
// write returns.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// SQLiteStore is a Store persisted in a SQLite database, so values survive
// a restart of the client.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *DB
	log *logging.Logger
}

// OpenSQLite opens the key-value database at path.
func OpenSQLite(path string, log *logging.Logger) (*SQLiteStore, error) {
	db, err := Open(path, log, KVMigrations)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore creates a key-value store on an already migrated database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db, log: db.log.Sub("kv")}
}

func (s *SQLiteStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.sql.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to read key")
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.sql.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.DateTime),
	)
	return err
}

func (s *SQLiteStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.sql.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store. Values do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
