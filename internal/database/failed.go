package database

import (
	"database/sql"
	"time"
)

// MaxFailedAttempts is the number of attempts after which a failed listing
// is discarded. The run that first failed counts as attempt one.
const MaxFailedAttempts = 5

// retryLease is how long an entry may stay in retrying before another retry
// run may take it over.
const retryLease = 30 * time.Minute

// EnqueueFailed records a failed processing attempt. A new entry starts at
// one attempt. A pending entry counts another attempt, refreshes its payload
// and error, and is discarded at MaxFailedAttempts. Entries in any other
// state keep their status and count.
func (db *DB) EnqueueFailed(platform, adID, url, payload, lastErr string) error {
	_, err := db.conn.Exec(
		`INSERT INTO failed_listings (source_platform, source_ad_id, url, raw_payload, last_error, attempts, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(source_platform, source_ad_id) DO UPDATE SET
			raw_payload = excluded.raw_payload,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at,
			attempts = CASE WHEN status = 'pending' THEN attempts + 1 ELSE attempts END,
			status = CASE
				WHEN status <> 'pending' THEN status
				WHEN attempts + 1 >= ? THEN 'discarded'
				ELSE 'pending'
			END`,
		platform, adID, url, payload, lastErr, now(), MaxFailedAttempts,
	)
	return err
}

// GetDueFailed returns up to limit entries, oldest first, and marks them as
// retrying. Pending entries are due, and so are retrying entries whose lease
// ran out because the run that took them never reported back.
func (db *DB) GetDueFailed(limit int) ([]FailedListing, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stale := time.Now().UTC().Add(-retryLease).Format(timeLayout)
	rows, err := tx.Query(
		`SELECT id, source_platform, source_ad_id, url, raw_payload, status, attempts, last_error, last_attempt_at, created_at
		FROM failed_listings
		WHERE attempts < ? AND (status = 'pending' OR (status = 'retrying' AND COALESCE(last_attempt_at, '') < ?))
		ORDER BY created_at, id LIMIT ?`, MaxFailedAttempts, stale, limit,
	)
	if err != nil {
		return nil, err
	}
	items, err := scanFailed(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	leased := now()
	for i := range items {
		if _, err := tx.Exec("UPDATE failed_listings SET status = 'retrying', last_attempt_at = ? WHERE id = ?", leased, items[i].ID); err != nil {
			return nil, err
		}
		items[i].Status = StatusRetrying
	}
	return items, tx.Commit()
}

// ResolveFailed marks a queued listing as successfully processed.
func (db *DB) ResolveFailed(id int64) error {
	_, err := db.conn.Exec(
		"UPDATE failed_listings SET status = 'resolved', attempts = attempts + 1, last_attempt_at = ? WHERE id = ?",
		now(), id,
	)
	return err
}

// RecordFailedAttempt counts a failed retry. The entry goes back to pending,
// or is discarded once it reaches MaxFailedAttempts. It reports whether the
// entry was discarded.
func (db *DB) RecordFailedAttempt(id int64, lastErr string) (bool, error) {
	var attempts int
	err := db.conn.QueryRow(
		`UPDATE failed_listings SET
			attempts = attempts + 1,
			last_error = ?,
			last_attempt_at = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'discarded' ELSE 'pending' END
		WHERE id = ? RETURNING attempts`,
		lastErr, now(), MaxFailedAttempts, id,
	).Scan(&attempts)
	if err != nil {
		return false, err
	}
	return attempts >= MaxFailedAttempts, nil
}

// GetFailedListings returns queue entries, newest first. An empty status
// returns every entry.
func (db *DB) GetFailedListings(status string, limit int) ([]FailedListing, error) {
	query := `SELECT id, source_platform, source_ad_id, url, raw_payload, status, attempts, last_error, last_attempt_at, created_at
		FROM failed_listings`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFailed(rows)
}

func scanFailed(rows *sql.Rows) ([]FailedListing, error) {
	var items []FailedListing
	for rows.Next() {
		var f FailedListing
		if err := rows.Scan(&f.ID, &f.SourcePlatform, &f.SourceAdID, &f.URL, &f.RawPayload,
			&f.Status, &f.Attempts, &f.LastError, &f.LastAttemptAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

const timeLayout = "2006-01-02 15:04:05"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
