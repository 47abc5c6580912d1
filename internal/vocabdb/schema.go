// Package vocabdb provides the SQLite-backed word and tag store with optional
// FTS5 trigram search.
package vocabdb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 with a casefold(text) SQL function on every
// connection. SQLite's own lower() and LIKE fold ASCII only.
const driverName = "sqlite3_vocabhive"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			return c.RegisterFunc("casefold", casefold, true)
		},
	})
}

func casefold(s string) string { return strings.ToLower(s) }

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS words (
	id            TEXT PRIMARY KEY,
	word          TEXT NOT NULL DEFAULT '',
	meaning       TEXT NOT NULL DEFAULT '',
	translation   TEXT NOT NULL DEFAULT '',
	example       TEXT NOT NULL DEFAULT '',
	pronunciation TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	audio         TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	submitted_by  TEXT NOT NULL DEFAULT '',
	date_added    INTEGER NOT NULL DEFAULT 0,
	is_bookmarked INTEGER NOT NULL DEFAULT 0,
	difficulty    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_words_word ON words(word COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_words_difficulty ON words(difficulty);
CREATE INDEX IF NOT EXISTS idx_words_date_added ON words(date_added);
CREATE INDEX IF NOT EXISTS idx_words_bookmarked ON words(is_bookmarked);

CREATE TABLE IF NOT EXISTS word_tags (
	word_id TEXT NOT NULL,
	tag_id  TEXT NOT NULL,
	UNIQUE(word_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_word_tags_tag ON word_tags(tag_id);

CREATE TABLE IF NOT EXISTS tags (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);

CREATE TABLE IF NOT EXISTS imports (
	source      TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with word-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions start IMMEDIATE so concurrent chunk upserts queue on the
// busy timeout instead of failing on lock upgrade.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open(driverName, dsn+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("vocabdb: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vocabdb: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vocabdb: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vocabdb: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
