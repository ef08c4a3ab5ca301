package store

import (
	"context"

	"github.com/clearity-app/clearity/internal/apperrors"
)

var migrations = []string{
	// v1: initial schema.
	`
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		salt          TEXT NOT NULL DEFAULT '',
		is_anonymous  INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		title      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS mindmaps (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
		map_name      TEXT NOT NULL,
		central_theme TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mindmap_fields (
		map_id   TEXT NOT NULL REFERENCES mindmaps(id) ON DELETE CASCADE,
		field_id TEXT NOT NULL,
		label    TEXT NOT NULL,
		PRIMARY KEY (map_id, field_id)
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id               TEXT PRIMARY KEY,
		map_id           TEXT NOT NULL REFERENCES mindmaps(id) ON DELETE CASCADE,
		parent_id        TEXT NOT NULL DEFAULT '',
		label            TEXT NOT NULL,
		emotion          TEXT NOT NULL,
		clarity          TEXT NOT NULL DEFAULT '',
		issue_severity   TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'active',
		importance_score REAL NOT NULL DEFAULT 0.5,
		is_core_issue    INTEGER NOT NULL DEFAULT 0,
		is_visible       INTEGER NOT NULL DEFAULT 1,
		fields           TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_map ON nodes(map_id);

	CREATE TABLE IF NOT EXISTS connections (
		map_id        TEXT NOT NULL REFERENCES mindmaps(id) ON DELETE CASCADE,
		type          TEXT NOT NULL,
		from_id       TEXT NOT NULL,
		to_id         TEXT NOT NULL,
		strength      TEXT NOT NULL,
		root_cause_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (map_id, from_id, to_id, type)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		payload    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_session ON analyses(session_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS tasks (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		related_issue      TEXT NOT NULL DEFAULT '',
		node_ids           TEXT NOT NULL DEFAULT '[]',
		priority_score     REAL NOT NULL DEFAULT 0,
		kpi                TEXT NOT NULL DEFAULT '',
		subtasks           TEXT NOT NULL DEFAULT '[]',
		estimated_time_min INTEGER NOT NULL DEFAULT 30,
		context_hint       TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'pending',
		created_at         TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id, priority_score DESC);

	CREATE TABLE IF NOT EXISTS snapshots (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		payload    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_user ON snapshots(user_id, created_at DESC);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return apperrors.NewPersistenceError("migrate", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return apperrors.NewPersistenceError("migrate", err)
	}

	for v := version; v < len(migrations); v++ {
		if _, err := s.db.ExecContext(ctx, migrations[v]); err != nil {
			return apperrors.NewPersistenceError("migrate", err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, v+1); err != nil {
			return apperrors.NewPersistenceError("migrate", err)
		}
	}
	return nil
}
