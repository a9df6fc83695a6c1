package store

import "database/sql"

// Schema contains the complete DDL for the sentrygate tables. All statements
// are idempotent (CREATE IF NOT EXISTS); Init applies them at startup.
//
// Uniqueness constraints are load-bearing: concurrent stateless handlers rely
// on them as tie-breakers instead of in-process locking (one banned_ips row
// per address, one daily_visits row per day, one flag_solves row per
// (username, level), one admin_status row).
const Schema = `
-- Append-only audit trail. Rows are never updated; the only delete paths are
-- the privileged purge action and retention cleanup.
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id   TEXT PRIMARY KEY,
    actor_type TEXT NOT NULL,
    ip         TEXT NOT NULL,
    action     TEXT NOT NULL,
    details    TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_ip_action ON audit_log(ip, action, created_at DESC);

-- Presence of a row is the sole authority for "is this address blocked".
CREATE TABLE IF NOT EXISTS banned_ips (
    ip         TEXT PRIMARY KEY,
    reason     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

-- Generic key/value flags: lockdown, broadcast message, client command.
CREATE TABLE IF NOT EXISTS site_config (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Singleton heartbeat row, producer of the dead-man's-switch signal.
CREATE TABLE IF NOT EXISTS admin_status (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    online       INTEGER NOT NULL DEFAULT 0,
    current_task TEXT NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_visits (
    day   TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS flag_solves (
    username   TEXT NOT NULL,
    level      TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(username, level)
);

CREATE TABLE IF NOT EXISTS guestbook (
    entry_id   TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_guestbook_created ON guestbook(created_at DESC);
`

// Init applies the schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
