package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobiSchelling/BikeScout/internal/database"
)

// PostgresSource reads sold-price observations from a shared Postgres table
// with brand, model, price and observed_at columns.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects to the history database.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing history dsn: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}
	if table == "" {
		table = "market_history"
	}
	return &PostgresSource{pool: pool, table: table}, nil
}

// Close releases the pool.
func (p *PostgresSource) Close() {
	p.pool.Close()
}

// Samples returns observations newer than since, oldest first.
func (p *PostgresSource) Samples(ctx context.Context, since time.Time) ([]database.HistorySample, error) {
	query := fmt.Sprintf(
		`SELECT brand, model, price::float8, observed_at FROM %s
		WHERE observed_at > $1 AND price > 0
		ORDER BY observed_at`,
		pgx.Identifier{p.table}.Sanitize(),
	)
	rows, err := p.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", p.table, err)
	}
	defer rows.Close()

	source := "postgres:" + p.table
	var samples []database.HistorySample
	for rows.Next() {
		var (
			s  database.HistorySample
			at time.Time
		)
		if err := rows.Scan(&s.Brand, &s.Model, &s.Price, &at); err != nil {
			return nil, err
		}
		s.ObservedAt = at.UTC().Format("2006-01-02 15:04:05")
		s.Source = source
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ImportPostgres copies observations newer than since into store.
func ImportPostgres(ctx context.Context, store Store, src *PostgresSource, since time.Time) (Result, error) {
	samples, err := src.Samples(ctx, since)
	if err != nil {
		return Result{}, err
	}
	log.Printf("Read %d history samples from %s", len(samples), src.table)
	return save(ctx, store, samples, 0)
}
