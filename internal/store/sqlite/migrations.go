package sqlite

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of local schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "sources and hourly metrics",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id TEXT PRIMARY KEY,
    code TEXT UNIQUE NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS time_bucket_metrics (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES sources(id),
    bucket_start TEXT NOT NULL,
    volume_raw REAL NOT NULL DEFAULT 0 CHECK(volume_raw >= 0),
    volume_normalized REAL
);

CREATE INDEX IF NOT EXISTS idx_tbm_source_bucket ON time_bucket_metrics(source_id, bucket_start);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "daily metrics",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS daily_metrics (
    source_id TEXT NOT NULL REFERENCES sources(id),
    day TEXT NOT NULL,
    volume_raw REAL NOT NULL,
    volume_normalized_avg REAL,
    bucket_count INTEGER NOT NULL,
    aggregated_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (source_id, day)
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
