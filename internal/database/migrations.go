package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL CHECK(platform IN ('linkedin', 'facebook', 'instagram', 'pinterest', 'twitter')),
    name TEXT NOT NULL,
    external_ref TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    schedule_times TEXT,
    timezone TEXT NOT NULL DEFAULT '',
    niche TEXT,
    tone TEXT,
    pattern TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS automation_profiles (
    account_id INTEGER PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
    batch_size INTEGER NOT NULL DEFAULT 1 CHECK(batch_size >= 1),
    error_handling TEXT NOT NULL DEFAULT 'continue' CHECK(error_handling IN ('continue', 'stop')),
    enabled INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    platform TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    hashtags TEXT,
    media_urls TEXT,
    status TEXT NOT NULL CHECK(status IN ('draft', 'scheduled', 'posted', 'failed')),
    origin TEXT NOT NULL DEFAULT 'manual' CHECK(origin IN ('manual', 'automation')),
    scheduled_at TEXT,
    posted_at TEXT,
    external_post_id TEXT,
    post_url TEXT,
    error_message TEXT,
    predicted_score REAL,
    actual_score REAL,
    claimed_by TEXT,
    claimed_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_posts_due ON posts(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_posts_account_slot ON posts(account_id, scheduled_at);

-- At most one automation post per (account, slot): a second insert for the
-- same slot fails instead of producing a duplicate publish.
CREATE UNIQUE INDEX IF NOT EXISTS ux_posts_automation_slot
    ON posts(account_id, scheduled_at) WHERE origin = 'automation';
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
