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
		Description: "listings and images",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS listings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_platform TEXT NOT NULL,
    source_ad_id TEXT NOT NULL,
    url TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    price REAL NOT NULL CHECK(price > 0),
    currency TEXT NOT NULL DEFAULT 'EUR',
    brand TEXT,
    model TEXT,
    year INTEGER,
    frame_material TEXT,
    frame_size TEXT,
    wheel_size TEXT,
    groupset TEXT,
    suspension TEXT,
    brakes_type TEXT,
    discipline TEXT,
    sub_category TEXT,
    facts_json TEXT,
    seller TEXT,
    location TEXT,
    delivery_mode TEXT,
    views INTEGER DEFAULT 0,
    published_at TEXT,
    confidence REAL DEFAULT 0,
    completeness INTEGER DEFAULT 0,
    quality INTEGER DEFAULT 0,
    low_confidence INTEGER DEFAULT 0,
    needs_review INTEGER DEFAULT 0,
    review_reasons TEXT,
    condition_score INTEGER CHECK(condition_score IS NULL OR condition_score BETWEEN 0 AND 100),
    condition_grade TEXT CHECK(condition_grade IS NULL OR condition_grade IN ('A', 'B', 'C')),
    functional_rating INTEGER,
    visual_rating INTEGER,
    condition_rationale TEXT,
    defects TEXT,
    condition_degraded INTEGER DEFAULT 0,
    fmv REAL,
    fmv_samples INTEGER DEFAULT 0,
    adjusted_fmv REAL,
    discount_pct REAL,
    sniper_hit INTEGER DEFAULT 0,
    sniper_reason TEXT,
    hotness INTEGER DEFAULT 0,
    is_active INTEGER DEFAULT 0,
    run_id TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(source_platform, source_ad_id)
);

CREATE TABLE IF NOT EXISTS listing_images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    position INTEGER NOT NULL,
    is_primary INTEGER DEFAULT 0,
    UNIQUE(listing_id, url)
);

CREATE INDEX IF NOT EXISTS idx_listings_hotness ON listings(hotness DESC);
CREATE INDEX IF NOT EXISTS idx_listings_brand_model ON listings(brand, model);
CREATE INDEX IF NOT EXISTS idx_listing_images_listing ON listing_images(listing_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "failed queue and event log",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS failed_listings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_platform TEXT NOT NULL,
    source_ad_id TEXT NOT NULL,
    url TEXT NOT NULL,
    raw_payload TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'retrying', 'resolved', 'discarded')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    last_attempt_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(source_platform, source_ad_id)
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    event_type TEXT NOT NULL,
    source TEXT,
    details TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_failed_status ON failed_listings(status);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "market history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS market_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    brand TEXT NOT NULL,
    model TEXT NOT NULL,
    price REAL NOT NULL CHECK(price > 0),
    observed_at TEXT NOT NULL,
    source TEXT,
    brand_key TEXT NOT NULL,
    model_key TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_brand ON market_history(brand_key, observed_at DESC);
`)
			return err
		},
	},
	{
		Version:     4,
		Description: "valuation price range and confidence",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"ALTER TABLE listings ADD COLUMN fmv_q1 REAL",
				"ALTER TABLE listings ADD COLUMN fmv_q3 REAL",
				"ALTER TABLE listings ADD COLUMN fmv_confidence REAL",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
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
