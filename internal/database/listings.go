package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

type factsDocument struct {
	Facts     listing.ExtractedFacts           `json:"facts"`
	Origins   map[listing.Field]listing.Origin `json:"origins,omitempty"`
	Conflicts []listing.Conflict               `json:"conflicts,omitempty"`
	Condition string                           `json:"condition_hint,omitempty"`
	Flags     []string                         `json:"condition_flags,omitempty"`
}

// NewListing flattens the stage records of one pipeline run into a row.
func NewListing(n listing.NormalizedListing, c listing.ConditionReport, v listing.ValuationResult, hotness int) Listing {
	raw := n.Raw
	doc, _ := json.Marshal(factsDocument{Facts: n.Facts, Origins: n.Origins, Conflicts: n.Conflicts, Condition: n.ConditionHint, Flags: c.Flags})

	l := Listing{
		SourcePlatform: raw.SourcePlatform,
		SourceAdID:     raw.SourceAdID,
		URL:            raw.URL,
		Title:          raw.Title,
		Description:    raw.Description,
		Price:          raw.Price,
		Currency:       raw.Currency,
		Brand:          n.Facts.Brand,
		Model:          n.Facts.Model,
		Year:           n.Facts.Year,
		FrameMaterial:  n.Facts.FrameMaterial,
		FrameSize:      n.Facts.FrameSize,
		WheelSize:      n.Facts.WheelSize,
		Groupset:       n.Facts.Groupset,
		Suspension:     n.Facts.Suspension,
		BrakesType:     n.Facts.BrakesType,
		Discipline:     n.Discipline,
		SubCategory:    n.SubCategory,
		FactsJSON:      string(doc),
		Seller:         raw.Seller,
		Location:       raw.Location,
		DeliveryMode:   string(v.Delivery),
		Views:          raw.Views,
		Confidence:     n.Confidence,
		Completeness:   n.Completeness,
		Quality:        n.Quality,
		LowConfidence:  n.LowConfidence,
		NeedsReview:    n.NeedsReview,
		ReviewReasons:  n.ReviewReasons,

		ConditionScore:     &c.Score,
		ConditionGrade:     &c.Grade,
		FunctionalRating:   c.Functional,
		VisualRating:       c.Visual,
		ConditionRationale: c.Rationale,
		Defects:            c.Defects,
		ConditionDegraded:  c.Degraded,

		FMV:          v.FMV,
		FMVSamples:   v.Samples,
		AdjustedFMV:  v.AdjustedFMV,
		SniperHit:    v.Sniper.Hit,
		SniperReason: v.Sniper.Reason,
		Hotness:      hotness,
	}
	if l.Currency == "" {
		l.Currency = "EUR"
	}
	if v.HasFMV() {
		d, c := v.DiscountPct, v.Confidence
		l.DiscountPct = &d
		l.FMVConfidence = &c
	}
	if v.Range != nil {
		q1, q3 := v.Range.Q1, v.Range.Q3
		l.FMVLow, l.FMVHigh = &q1, &q3
	}
	if raw.PublishedAt != nil {
		s := raw.PublishedAt.UTC().Format(time.RFC3339)
		l.PublishedAt = &s
	}
	for _, img := range listing.PrepareImages(raw.Images, raw.PrimaryImage) {
		l.Images = append(l.Images, Image{URL: img.URL, Position: img.Position, IsPrimary: img.IsPrimary})
	}
	return l
}

// ListingExists reports whether a listing with the key is already stored.
// It is a cheap lookup; InsertListing repeats the check transactionally.
func (db *DB) ListingExists(platform, adID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM listings WHERE source_platform = ? AND source_ad_id = ?",
		platform, adID,
	).Scan(&n)
	return n > 0, err
}

// InsertListing stores a listing with its images and records its price as a
// market history sample, all in one transaction. An existing key is not an
// error: the row is left untouched and OutcomeDuplicate is returned.
func (db *DB) InsertListing(ctx context.Context, l Listing) (Outcome, int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM listings WHERE source_platform = ? AND source_ad_id = ?",
		l.SourcePlatform, l.SourceAdID,
	).Scan(&existing)
	if err == nil {
		return OutcomeDuplicate, existing, nil
	}
	if err != sql.ErrNoRows {
		return OutcomeFailed, 0, fmt.Errorf("checking existing listing: %w", err)
	}

	reasons, _ := json.Marshal(l.ReviewReasons)
	defects, _ := json.Marshal(l.Defects)

	res, err := tx.ExecContext(ctx, `INSERT INTO listings (
		source_platform, source_ad_id, url, title, description, price, currency,
		brand, model, year, frame_material, frame_size, wheel_size, groupset, suspension, brakes_type,
		discipline, sub_category, facts_json, seller, location, delivery_mode, views, published_at,
		confidence, completeness, quality, low_confidence, needs_review, review_reasons,
		condition_score, condition_grade, functional_rating, visual_rating, condition_rationale, defects, condition_degraded,
		fmv, fmv_samples, fmv_q1, fmv_q3, fmv_confidence, adjusted_fmv, discount_pct, sniper_hit, sniper_reason, hotness, is_active, run_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_platform, source_ad_id) DO NOTHING`,
		l.SourcePlatform, l.SourceAdID, l.URL, l.Title, l.Description, l.Price, l.Currency,
		nullString(l.Brand), nullString(l.Model), nullInt(l.Year), nullString(l.FrameMaterial), nullString(l.FrameSize),
		nullString(l.WheelSize), nullString(l.Groupset), nullString(l.Suspension), nullString(l.BrakesType),
		nullString(l.Discipline), nullString(l.SubCategory), l.FactsJSON, nullString(l.Seller), nullString(l.Location),
		nullString(l.DeliveryMode), l.Views, l.PublishedAt,
		l.Confidence, l.Completeness, l.Quality, boolInt(l.LowConfidence), boolInt(l.NeedsReview), string(reasons),
		l.ConditionScore, l.ConditionGrade, l.FunctionalRating, l.VisualRating, l.ConditionRationale, string(defects), boolInt(l.ConditionDegraded),
		l.FMV, l.FMVSamples, l.FMVLow, l.FMVHigh, l.FMVConfidence, l.AdjustedFMV, l.DiscountPct, boolInt(l.SniperHit), l.SniperReason, l.Hotness, boolInt(l.IsActive), l.RunID,
	)
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("inserting listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return OutcomeDuplicate, 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return OutcomeFailed, 0, err
	}

	for _, img := range l.Images {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO listing_images (listing_id, url, position, is_primary) VALUES (?, ?, ?, ?)",
			id, img.URL, img.Position, boolInt(img.IsPrimary),
		); err != nil {
			return OutcomeFailed, 0, fmt.Errorf("inserting image: %w", err)
		}
	}

	if l.Brand != "" && l.Model != "" {
		s := HistorySample{Brand: l.Brand, Model: l.Model, Price: l.Price, Source: l.SourcePlatform}
		if err := insertHistory(ctx, tx, s, time.Now()); err != nil {
			return OutcomeFailed, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return OutcomeFailed, 0, fmt.Errorf("commit listing: %w", err)
	}
	return OutcomeInserted, id, nil
}

const listingColumns = `id, source_platform, source_ad_id, url, title, COALESCE(description, ''), price, currency,
	COALESCE(brand, ''), COALESCE(model, ''), COALESCE(year, 0), COALESCE(frame_material, ''), COALESCE(frame_size, ''),
	COALESCE(wheel_size, ''), COALESCE(groupset, ''), COALESCE(suspension, ''), COALESCE(brakes_type, ''),
	COALESCE(discipline, ''), COALESCE(sub_category, ''), COALESCE(facts_json, ''), COALESCE(seller, ''),
	COALESCE(location, ''), COALESCE(delivery_mode, ''), views, published_at,
	confidence, completeness, quality, low_confidence, needs_review, COALESCE(review_reasons, ''),
	condition_score, condition_grade, COALESCE(functional_rating, 0), COALESCE(visual_rating, 0),
	COALESCE(condition_rationale, ''), COALESCE(defects, ''), condition_degraded,
	fmv, fmv_samples, fmv_q1, fmv_q3, fmv_confidence, adjusted_fmv, discount_pct, sniper_hit, COALESCE(sniper_reason, ''), hotness,
	is_active, COALESCE(run_id, ''), created_at`

// GetListing returns a listing with its images, or nil if it does not exist.
func (db *DB) GetListing(id int64) (*Listing, error) {
	rows, err := db.conn.Query("SELECT "+listingColumns+" FROM listings WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	listings, err := scanListings(rows)
	if err != nil || len(listings) == 0 {
		return nil, err
	}
	l := &listings[0]
	l.Images, err = db.GetListingImages(id)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetListings returns listings ordered by hotness, then newest first.
func (db *DB) GetListings(opts ListOptions) ([]Listing, error) {
	query := "SELECT " + listingColumns + " FROM listings WHERE hotness >= ?"
	args := []any{opts.MinHotness}
	if opts.ActiveOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY hotness DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// GetListingImages returns a listing's images in position order.
func (db *DB) GetListingImages(listingID int64) ([]Image, error) {
	rows, err := db.conn.Query(
		"SELECT url, position, is_primary FROM listing_images WHERE listing_id = ? ORDER BY position",
		listingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		var primary int
		if err := rows.Scan(&img.URL, &img.Position, &primary); err != nil {
			return nil, err
		}
		img.IsPrimary = primary != 0
		images = append(images, img)
	}
	return images, rows.Err()
}

func scanListings(rows *sql.Rows) ([]Listing, error) {
	var listings []Listing
	for rows.Next() {
		var l Listing
		var lowConf, review, degraded, sniper, active int
		var reasons, defects string
		if err := rows.Scan(&l.ID, &l.SourcePlatform, &l.SourceAdID, &l.URL, &l.Title, &l.Description, &l.Price, &l.Currency,
			&l.Brand, &l.Model, &l.Year, &l.FrameMaterial, &l.FrameSize,
			&l.WheelSize, &l.Groupset, &l.Suspension, &l.BrakesType,
			&l.Discipline, &l.SubCategory, &l.FactsJSON, &l.Seller,
			&l.Location, &l.DeliveryMode, &l.Views, &l.PublishedAt,
			&l.Confidence, &l.Completeness, &l.Quality, &lowConf, &review, &reasons,
			&l.ConditionScore, &l.ConditionGrade, &l.FunctionalRating, &l.VisualRating,
			&l.ConditionRationale, &defects, &degraded,
			&l.FMV, &l.FMVSamples, &l.FMVLow, &l.FMVHigh, &l.FMVConfidence, &l.AdjustedFMV, &l.DiscountPct, &sniper, &l.SniperReason, &l.Hotness,
			&active, &l.RunID, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.LowConfidence = lowConf != 0
		l.NeedsReview = review != 0
		l.ConditionDegraded = degraded != 0
		l.SniperHit = sniper != 0
		l.IsActive = active != 0
		if reasons != "" {
			json.Unmarshal([]byte(reasons), &l.ReviewReasons)
		}
		if defects != "" {
			json.Unmarshal([]byte(defects), &l.Defects)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
