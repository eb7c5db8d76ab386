package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id          TEXT NOT NULL,
		external_key        TEXT NOT NULL,
		source              TEXT NOT NULL DEFAULT '',
		title               TEXT NOT NULL DEFAULT '',
		body                TEXT NOT NULL DEFAULT '',
		acceptance_criteria TEXT NOT NULL DEFAULT '',
		labels              TEXT NOT NULL DEFAULT '[]',
		status              TEXT NOT NULL DEFAULT '',
		priority            TEXT NOT NULL DEFAULT '',
		meta                TEXT NOT NULL DEFAULT '{}',
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL,
		UNIQUE (project_id, external_key)
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_project ON tickets(project_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets(updated_at);

	CREATE TABLE IF NOT EXISTS worklogs (
		id          TEXT PRIMARY KEY,
		ticket_id   INTEGER NOT NULL REFERENCES tickets(id),
		actor       TEXT NOT NULL DEFAULT '',
		phase       TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		ended_at    INTEGER,
		seconds     INTEGER NOT NULL DEFAULT 0,
		notes       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'in_progress',
		sync_status TEXT,
		sync_error  TEXT,
		synced_at   INTEGER,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_worklogs_ticket ON worklogs(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_worklogs_pending_sync ON worklogs(status) WHERE synced_at IS NULL;

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}
