package database

import (
	"encoding/json"
	"log"
)

// Event types.
const (
	EventRunStarted       = "run_started"
	EventRunFinished      = "run_finished"
	EventListingRejected  = "listing_rejected"
	EventListingAdded     = "listing_added"
	EventListingDuplicate = "listing_duplicate"
	EventListingFailed    = "listing_failed"
	EventHotListing       = "hot_listing"
	EventSniperHit        = "sniper_hit"
	EventFailedRequeued   = "failed_requeued"
	EventFailedDiscarded  = "failed_discarded"
)

// LogEvent appends an event. Failures are logged and otherwise ignored
// since the event log is observational only.
func (db *DB) LogEvent(runID, eventType, source string, details map[string]any) {
	var payload *string
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err == nil {
			s := string(data)
			payload = &s
		}
	}
	if _, err := db.conn.Exec(
		"INSERT INTO events (run_id, event_type, source, details) VALUES (?, ?, ?, ?)",
		runID, eventType, source, payload,
	); err != nil {
		log.Printf("Error logging %s event: %v", eventType, err)
	}
}

// GetRecentEvents returns the newest events first.
func (db *DB) GetRecentEvents(limit int) ([]Event, error) {
	rows, err := db.conn.Query(
		`SELECT id, COALESCE(run_id, ''), event_type, COALESCE(source, ''), details, created_at
		FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details *string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Source, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if details != nil {
			json.Unmarshal([]byte(*details), &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
