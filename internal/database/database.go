package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB is the listing store: listings, images, the failed queue, the event log
// and market history in one SQLite file.
type DB struct {
	conn *sql.DB
	path string
}

// connPragmas apply to every pooled connection. busy_timeout lets a second
// run wait for the writer instead of failing with SQLITE_BUSY.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

// dsn builds the modernc connection string. _txlock=immediate makes every
// transaction take the write lock at BEGIN, so the existence check inside
// InsertListing cannot interleave with another writer.
func dsn(dbPath string) string {
	params := []string{"_txlock=immediate"}
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	return dbPath + "?" + strings.Join(params, "&")
}

// Open creates or opens the store at dbPath and migrates it to the latest
// schema. A file created by another program is rejected.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
