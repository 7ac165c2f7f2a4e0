package store

// Migration represents a single schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// KVMigrations is the schema for the client-side key-value store.
var KVMigrations = []Migration{
	{
		Version: 1,
		Name:    "create kv",
		SQL: `
			CREATE TABLE kv (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
