package serverdb

// ServerSchemaVersion is the current document database schema version
const ServerSchemaVersion = 2

// Timestamps are stored as RFC 3339 text so both sqlite drivers read them back the same way.
const serverSchema = `
-- One row per principal
CREATE TABLE IF NOT EXISTS documents (
    key TEXT PRIMARY KEY,
    doc TEXT NOT NULL,
    revision INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add write_log table recording committed document writes",
		SQL: `CREATE TABLE IF NOT EXISTS write_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			revision INTEGER NOT NULL,
			writer TEXT NOT NULL DEFAULT '',
			bytes INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_write_log_key ON write_log(key, id);`,
	},
}
