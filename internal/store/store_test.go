package store

import (
	"path/filepath"
	"testing"

	"github.com/soyeahso/studychat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log, KVMigrations)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(KVMigrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	require.NoError(t, db.migrate())

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(KVMigrations), count)
}

func TestMigrations_BadSQL(t *testing.T) {
	log := logging.New(nil, "silent")
	_, err := Open(":memory:", log, []Migration{{Version: 1, Name: "broken", SQL: "CREATE TABLE ("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

// --- Store contract tests, run against both implementations ---

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": NewSQLiteStore(testDB(t)),
		"memory": NewMemoryStore(),
	}
}

func TestStore_GetAbsent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			v, ok := s.Get(KeyActiveSession)
			assert.False(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(KeyToken, "tok-1"))
			v, ok := s.Get(KeyToken)
			assert.True(t, ok)
			assert.Equal(t, "tok-1", v)
		})
	}
}

func TestStore_SetReplaces(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(KeyActiveSession, "1"))
			require.NoError(t, s.Set(KeyActiveSession, "2"))
			v, ok := s.Get(KeyActiveSession)
			assert.True(t, ok)
			assert.Equal(t, "2", v)
		})
	}
}

func TestStore_Remove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(KeyUsername, "amara"))
			require.NoError(t, s.Remove(KeyUsername))
			_, ok := s.Get(KeyUsername)
			assert.False(t, ok)

			// removing again is fine
			assert.NoError(t, s.Remove(KeyUsername))
		})
	}
}

func TestStore_KeysIndependent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(KeyToken, "tok"))
			require.NoError(t, s.Set(KeyActiveSession, "5"))
			require.NoError(t, s.Remove(KeyActiveSession))

			v, ok := s.Get(KeyToken)
			assert.True(t, ok)
			assert.Equal(t, "tok", v)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	log := logging.New(nil, "silent")

	s1, err := OpenSQLite(path, log)
	require.NoError(t, err)
	require.NoError(t, s1.Set(KeyActiveSession, "12"))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	v, ok := s2.Get(KeyActiveSession)
	assert.True(t, ok)
	assert.Equal(t, "12", v)
}
