// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL and foreign keys, and creates the schema

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Uniqueness of identifiers and emails is enforced here, not by callers.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			phone         TEXT NOT NULL,
			profession    TEXT NOT NULL,
			talents_json  TEXT NOT NULL DEFAULT '[]',
			password_hash TEXT NOT NULL,
			secret        TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS posts (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL REFERENCES identities(id),
			title         TEXT NOT NULL,
			description   TEXT NOT NULL,
			remarks       TEXT NOT NULL,
			skills_json   TEXT NOT NULL DEFAULT '[]',
			comp          REAL NOT NULL,
			duration      REAL NOT NULL,
			location_json TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL,
			end_date      TEXT NOT NULL,
			expires_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_posts_owner ON posts(owner_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);

		CREATE TABLE IF NOT EXISTS post_keywords (
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			keyword TEXT NOT NULL,
			PRIMARY KEY (post_id, keyword)
		);

		CREATE INDEX IF NOT EXISTS idx_post_keywords_keyword ON post_keywords(keyword);

		CREATE TABLE IF NOT EXISTS keywords (
			keyword TEXT PRIMARY KEY,
			hitrate INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS accepted_jobs (
			identity_id TEXT NOT NULL REFERENCES identities(id),
			post_id     TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			accepted_at TEXT NOT NULL,
			PRIMARY KEY (identity_id, post_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
