package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// historyKey is the normalized form used for brand/model matching.
func historyKey(s string) string {
	return listing.NormalizeText(s)
}

func insertHistory(ctx context.Context, tx *sql.Tx, s HistorySample, at time.Time) error {
	observed := s.ObservedAt
	if observed == "" {
		observed = at.UTC().Format("2006-01-02 15:04:05")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO market_history (brand, model, price, observed_at, source, brand_key, model_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Brand, s.Model, s.Price, observed, s.Source, historyKey(s.Brand), historyKey(s.Model),
	); err != nil {
		return fmt.Errorf("inserting history sample: %w", err)
	}
	return nil
}

// AddHistorySamples stores imported samples in one transaction. Samples
// without brand, model or a positive price are skipped. It returns the number
// stored.
func (db *DB) AddHistorySamples(ctx context.Context, samples []HistorySample) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n := 0
	now := time.Now()
	for _, s := range samples {
		s.Brand, s.Model = strings.TrimSpace(s.Brand), strings.TrimSpace(s.Model)
		if s.Brand == "" || s.Model == "" || s.Price <= 0 {
			continue
		}
		if err := insertHistory(ctx, tx, s, now); err != nil {
			return 0, err
		}
		n++
	}
	return n, tx.Commit()
}

// RecentPrices returns up to limit prices for the brand whose model matches
// fuzzily, newest first. Models match when either name contains the other,
// so "Spectral" matches "Spectral CF 8" and the reverse.
func (db *DB) RecentPrices(ctx context.Context, brand, model string, limit int) ([]float64, error) {
	bk, mk := historyKey(brand), historyKey(model)
	if bk == "" || mk == "" {
		return nil, nil
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT price FROM market_history
		WHERE brand_key = ?
		  AND (instr(model_key, ?) > 0 OR instr(?, model_key) > 0)
		ORDER BY observed_at DESC, id DESC
		LIMIT ?`,
		bk, mk, mk, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
