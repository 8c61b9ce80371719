package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/BikeScout/internal/database"
)

type memStore struct {
	samples []database.HistorySample
	err     error
}

func (m *memStore) AddHistorySamples(ctx context.Context, samples []database.HistorySample) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.samples = append(m.samples, samples...)
	return len(samples), nil
}

func TestReadCSVSemicolonGerman(t *testing.T) {
	data := "Marke;Modell;Preis;Datum\n" +
		"Canyon;Spectral CF 8;2.600 €;01.05.2024\n" +
		"Cube;Stereo 150;;02.05.2024\n" +
		"YT;Capra;3.100,00;\n"

	samples, skipped, err := ReadCSV(strings.NewReader(data), "test")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", skipped)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Price != 2600 || samples[0].ObservedAt != "2024-05-01 00:00:00" {
		t.Errorf("unexpected first sample %+v", samples[0])
	}
	if samples[1].Price != 3100 || samples[1].ObservedAt != "" {
		t.Errorf("unexpected second sample %+v", samples[1])
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("brand,price\nCanyon,100\n"), "test")
	if err == nil || !strings.Contains(err.Error(), "model") {
		t.Errorf("expected missing model column error, got %v", err)
	}
}

func TestImportFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sold.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"brand", "model", "price", "observed_at"},
		{"Santa Cruz", "Nomad", 4200, "2024-04-01"},
		{"Santa Cruz", "Bronson", "3.800", "2024-04-03"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	store := &memStore{}
	res, err := ImportFile(context.Background(), store, path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Read != 2 || res.Stored != 2 || res.Skipped != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if store.samples[0].Source != "import:sold.xlsx" || store.samples[1].Price != 3800 {
		t.Errorf("unexpected samples %+v", store.samples)
	}
}

func TestImportFileIntoDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sold.csv")
	data := "brand,model,price,date\nCanyon,Spectral,2500,2024-05-01\nCanyon,Spectral CF 8,2700,2024-05-02\nCanyon,Spectral,0,2024-05-03\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := database.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	res, err := ImportFile(context.Background(), db, path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Stored != 2 || res.Skipped != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	prices, err := db.RecentPrices(context.Background(), "canyon", "spectral", 10)
	if err != nil {
		t.Fatalf("RecentPrices: %v", err)
	}
	if len(prices) != 2 || prices[0] != 2700 {
		t.Errorf("expected newest first [2700 2500], got %v", prices)
	}
}

func TestImportFileRejectsUnknownExtension(t *testing.T) {
	if _, err := ImportFile(context.Background(), &memStore{}, "sold.json"); err == nil {
		t.Error("expected error for .json file")
	}
}

func TestImportStoreError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sold.csv")
	os.WriteFile(path, []byte("brand,model,price\nCanyon,Spectral,2500\n"), 0o644)

	_, err := ImportFile(context.Background(), &memStore{err: errors.New("disk full")}, path)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestImportPostgres(t *testing.T) {
	dsn := os.Getenv("HISTORY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HISTORY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	src, err := OpenPostgres(ctx, dsn, "market_history")
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer src.Close()

	store := &memStore{}
	if _, err := ImportPostgres(ctx, store, src, time.Now().AddDate(-1, 0, 0)); err != nil {
		t.Fatalf("ImportPostgres: %v", err)
	}
	for _, s := range store.samples {
		if s.Price <= 0 || !strings.HasPrefix(s.Source, "postgres:") {
			t.Errorf("unexpected sample %+v", s)
		}
	}
}
