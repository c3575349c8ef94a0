package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the on-device SQLite cache.
type DB struct {
	Client *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS students (
	event_id  INTEGER NOT NULL,
	uid       TEXT NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	branch    TEXT NOT NULL DEFAULT '',
	year      TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT 'Absent',
	timestamp TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (event_id, uid)
);

CREATE TABLE IF NOT EXISTS offline_queue (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	action     TEXT NOT NULL,
	uid        TEXT NOT NULL,
	event_id   INTEGER NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_offline_queue_dedup
	ON offline_queue(action, event_id, uid);

CREATE TABLE IF NOT EXISTS device (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open creates (or opens) the local database and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; funnel everything through one connection
	// so compound statements never race on the driver level.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
