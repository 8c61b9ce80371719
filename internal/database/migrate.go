package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// applicationID marks a SQLite file as a BikeScout store ("BSKT").
const applicationID = 0x42534b54

var (
	// ErrForeignDatabase is returned for a SQLite file that holds tables but
	// was not created by BikeScout.
	ErrForeignDatabase = errors.New("database: not a BikeScout database")
	// ErrSchemaTooNew is returned when the file was migrated by a newer build.
	ErrSchemaTooNew = errors.New("database: schema is newer than this build")
)

// SchemaInfo describes the schema state of an open database.
type SchemaInfo struct {
	Version int
	Latest  int
	Applied []AppliedMigration
}

// AppliedMigration is one row of the migration history. AppliedAt is empty
// for versions that predate the history table.
type AppliedMigration struct {
	Version     int
	Description string
	AppliedAt   string
}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// claim stamps the application id on a new file and rejects files owned by
// another program. Files from BikeScout builds that did not stamp the id yet
// are recognized by a non-zero schema version.
func claim(conn *sql.DB, version int) error {
	var id int
	if err := conn.QueryRow("PRAGMA application_id").Scan(&id); err != nil {
		return fmt.Errorf("reading application id: %w", err)
	}
	if id == applicationID {
		return nil
	}
	if id != 0 {
		return fmt.Errorf("%w (application id %#x)", ErrForeignDatabase, id)
	}
	if version == 0 {
		var tables int
		if err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables); err != nil {
			return fmt.Errorf("inspecting tables: %w", err)
		}
		if tables > 0 {
			return ErrForeignDatabase
		}
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return fmt.Errorf("stamping application id: %w", err)
	}
	return nil
}

// migrate brings the schema to the latest version. PRAGMA user_version is the
// source of truth; schema_migrations keeps a readable history next to it.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if err := claim(conn, current); err != nil {
		return err
	}

	latest := latestVersion()
	if current > latest {
		return fmt.Errorf("%w: file is at v%d, build knows v%d", ErrSchemaTooNew, current, latest)
	}

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TEXT
	)`); err != nil {
		return fmt.Errorf("creating migration history: %w", err)
	}
	for _, m := range migrations {
		if m.Version > current {
			break
		}
		if _, err := conn.Exec(
			"INSERT OR IGNORE INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("backfilling migration history: %w", err)
		}
	}
	// A crash between a migration's commit and the version pragma leaves the
	// history ahead of user_version. ALTER TABLE steps cannot re-run.
	var recorded int
	if err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&recorded); err != nil {
		return fmt.Errorf("reading migration history: %w", err)
	}
	if recorded > current && recorded <= latest {
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", recorded)); err != nil {
			return fmt.Errorf("setting version %d: %w", recorded, err)
		}
		current = recorded
	}
	if current == latest {
		return nil
	}

	from := current
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, now(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not persist user_version set inside a
		// transaction; the history row written above covers a crash here.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
		current = m.Version
		log.Printf("Database migration %d applied: %s", m.Version, m.Description)
	}

	log.Printf("Database schema upgraded from v%d to v%d", from, current)
	return nil
}

// Schema reports the schema version and migration history.
func (db *DB) Schema() (*SchemaInfo, error) {
	version, err := getSchemaVersion(db.conn)
	if err != nil {
		return nil, err
	}
	info := &SchemaInfo{Version: version, Latest: latestVersion()}

	rows, err := db.conn.Query("SELECT version, description, COALESCE(applied_at, '') FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m AppliedMigration
		if err := rows.Scan(&m.Version, &m.Description, &m.AppliedAt); err != nil {
			return nil, err
		}
		info.Applied = append(info.Applied, m)
	}
	return info, rows.Err()
}
