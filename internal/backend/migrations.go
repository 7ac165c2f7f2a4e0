package backend

import "github.com/soyeahso/studychat/internal/store"

// Migrations is the schema of the reference backend's database.
var Migrations = []store.Migration{
	{
		Version: 1,
		Name:    "create users and tokens",
		SQL: `
			CREATE TABLE users (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				username      TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE auth_tokens (
				token      TEXT PRIMARY KEY,
				user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at TEXT NOT NULL
			);

			CREATE INDEX idx_auth_tokens_user ON auth_tokens(user_id);
		`,
	},
	{
		Version: 2,
		Name:    "create sessions and exchanges",
		SQL: `
			CREATE TABLE chat_sessions (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name       TEXT NOT NULL,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_chat_sessions_user ON chat_sessions(user_id, created_at);

			CREATE TABLE chat_exchanges (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				message    TEXT NOT NULL,
				response   TEXT,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_chat_exchanges_session ON chat_exchanges(session_id, id);
		`,
	},
}
