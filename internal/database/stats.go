package database

// GetStats returns aggregate database statistics. Listings at or above
// hotThreshold count as hot.
func (db *DB) GetStats(hotThreshold int) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		args []any
		dest *int
	}{
		{"SELECT COUNT(*) FROM listings", nil, &s.TotalListings},
		{"SELECT COUNT(*) FROM listings WHERE is_active = 1", nil, &s.ActiveListings},
		{"SELECT COUNT(*) FROM listings WHERE needs_review = 1", nil, &s.NeedsReview},
		{"SELECT COUNT(*) FROM listings WHERE hotness >= ?", []any{hotThreshold}, &s.HotListings},
		{"SELECT COUNT(*) FROM listings WHERE sniper_hit = 1", nil, &s.SniperHits},
		{"SELECT COUNT(*) FROM failed_listings WHERE status IN ('pending', 'retrying')", nil, &s.PendingFailed},
		{"SELECT COUNT(*) FROM failed_listings WHERE status = 'discarded'", nil, &s.DiscardedFailed},
		{"SELECT COUNT(*) FROM market_history", nil, &s.HistorySamples},
		{"SELECT COUNT(*) FROM events", nil, &s.Events},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql, q.args...).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
