// Package history imports sold-price observations into the market history
// used for fair market value estimates.
package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/listing"
)

// Store persists imported samples.
type Store interface {
	AddHistorySamples(ctx context.Context, samples []database.HistorySample) (int, error)
}

// Result summarizes an import.
type Result struct {
	Read    int
	Stored  int
	Skipped int
}

var columnAliases = map[string]string{
	"brand":       "brand",
	"marke":       "brand",
	"hersteller":  "brand",
	"model":       "model",
	"modell":      "model",
	"price":       "price",
	"preis":       "price",
	"sold_price":  "price",
	"observed_at": "observed_at",
	"date":        "observed_at",
	"datum":       "observed_at",
	"sold_at":     "observed_at",
}

// columns maps canonical column names to their index in a header row.
type columns map[string]int

func parseHeader(header []string) (columns, error) {
	cols := columns{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := columnAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, required := range []string{"brand", "model", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02.01.2006"}

func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return ""
}

// rowsToSamples converts data rows. Rows without a usable price are counted
// as skipped.
func rowsToSamples(rows [][]string, source string) ([]database.HistorySample, int, error) {
	if len(rows) == 0 {
		return nil, 0, errors.New("empty history file")
	}
	cols, err := parseHeader(rows[0])
	if err != nil {
		return nil, 0, err
	}

	var samples []database.HistorySample
	skipped := 0
	for _, row := range rows[1:] {
		price, ok := listing.ParsePrice(cols.get(row, "price"))
		brand, model := cols.get(row, "brand"), cols.get(row, "model")
		if !ok || brand == "" || model == "" {
			skipped++
			continue
		}
		samples = append(samples, database.HistorySample{
			Brand:      brand,
			Model:      model,
			Price:      price,
			ObservedAt: normalizeDate(cols.get(row, "observed_at")),
			Source:     source,
		})
	}
	return samples, skipped, nil
}

// ReadCSV reads samples from CSV with a header row. Comma and semicolon
// separated files are both accepted.
func ReadCSV(r io.Reader, source string) ([]database.HistorySample, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	firstLine, _, _ := strings.Cut(string(data), "\n")
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("reading csv: %w", err)
	}
	return rowsToSamples(rows, source)
}

// ReadXLSX reads samples from the first sheet of a workbook.
func ReadXLSX(path, source string) ([]database.HistorySample, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rowsToSamples(rows, source)
}

// ImportFile reads a .csv or .xlsx file and stores its samples.
func ImportFile(ctx context.Context, store Store, path string) (Result, error) {
	source := "import:" + filepath.Base(path)

	var (
		samples []database.HistorySample
		skipped int
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return Result{}, openErr
		}
		defer f.Close()
		samples, skipped, err = ReadCSV(f, source)
	case ".xlsx":
		samples, skipped, err = ReadXLSX(path, source)
	default:
		return Result{}, fmt.Errorf("unsupported history file %s (want .csv or .xlsx)", path)
	}
	if err != nil {
		return Result{}, err
	}
	return save(ctx, store, samples, skipped)
}

func save(ctx context.Context, store Store, samples []database.HistorySample, skipped int) (Result, error) {
	n, err := store.AddHistorySamples(ctx, samples)
	if err != nil {
		return Result{}, fmt.Errorf("storing history: %w", err)
	}
	res := Result{Read: len(samples) + skipped, Stored: n, Skipped: skipped + len(samples) - n}
	log.Printf("History import: %d read, %d stored, %d skipped", res.Read, res.Stored, res.Skipped)
	return res, nil
}
