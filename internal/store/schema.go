package store

import (
	"database/sql"
	"fmt"

	"chessmaster/internal/logging"
)

// CurrentSchemaVersion is recorded in schema_versions on open.
const CurrentSchemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'page',
		body TEXT NOT NULL,
		excerpts TEXT NOT NULL DEFAULT '[]',
		image_urls TEXT NOT NULL DEFAULT '[]',
		local_images TEXT NOT NULL DEFAULT '[]',
		fetched_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_topic ON content_items(topic, fetched_at)`,
	`CREATE TABLE IF NOT EXISTS seen_urls (
		url TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consumption (
		lesson_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		consumed_at INTEGER NOT NULL,
		PRIMARY KEY (lesson_id, item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consumption_item ON consumption(item_id)`,
	`CREATE TABLE IF NOT EXISTS lesson_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		slides_total INTEGER NOT NULL,
		slides_shown INTEGER NOT NULL,
		review INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_finished ON lesson_history(finished_at)`,
}

// initSchema creates tables and records the version.
func initSchema(db *sql.DB, now int64) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if _, err := db.Exec(
		`INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, ?)`,
		CurrentSchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	logging.CacheDebug("Schema ready: version=%d", CurrentSchemaVersion)
	return nil
}

// SchemaVersion returns the highest recorded schema version, or 0.
func SchemaVersion(db *sql.DB) int {
	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version); err != nil {
		return 0
	}
	return version
}
