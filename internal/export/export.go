// Package export writes stored listings to an XLSX workbook for review
// outside the dashboard.
package export

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/BikeScout/internal/database"
)

const sheet = "Listings"

var headers = []string{
	"Hotness",
	"Sniper",
	"Title",
	"Brand",
	"Model",
	"Year",
	"Price",
	"FMV",
	"Adjusted FMV",
	"Discount %",
	"Grade",
	"Condition",
	"Delivery",
	"Quality",
	"Needs Review",
	"Review Reasons",
	"URL",
	"FMV Range",
	"FMV Confidence",
}

// Lister is the listing query the export needs.
type Lister interface {
	GetListings(opts database.ListOptions) ([]database.Listing, error)
}

// ListingsXLSX returns the workbook bytes for listings matching opts.
func ListingsXLSX(db Lister, opts database.ListOptions) ([]byte, int, error) {
	start := time.Now()

	listings, err := db.GetListings(opts)
	if err != nil {
		return nil, 0, fmt.Errorf("query listings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, 0, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, l := range listings {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, l.Hotness)
		write(2, yesNo(l.SniperHit))
		write(3, l.Title)
		write(4, l.Brand)
		write(5, l.Model)
		if l.Year > 0 {
			write(6, l.Year)
		}
		write(7, l.Price)
		writeFloat(write, 8, l.FMV)
		writeFloat(write, 9, l.AdjustedFMV)
		writeFloat(write, 10, l.DiscountPct)
		if l.ConditionGrade != nil {
			write(11, *l.ConditionGrade)
		}
		if l.ConditionScore != nil {
			write(12, *l.ConditionScore)
		}
		write(13, l.DeliveryMode)
		write(14, l.Quality)
		write(15, yesNo(l.NeedsReview))
		write(16, strings.Join(l.ReviewReasons, ", "))
		write(17, l.URL)
		if l.FMVLow != nil && l.FMVHigh != nil {
			write(18, fmt.Sprintf("%.0f-%.0f", *l.FMVLow, *l.FMVHigh))
		}
		writeFloat(write, 19, l.FMVConfidence)
	}

	_ = f.SetColWidth(sheet, "A", "B", 9)
	_ = f.SetColWidth(sheet, "C", "C", 48)
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "G", "J", 12)
	_ = f.SetColWidth(sheet, "P", "P", 36)
	_ = f.SetColWidth(sheet, "Q", "Q", 60)
	_ = f.SetColWidth(sheet, "R", "S", 14)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}
	log.Printf("Exported %d listings in %dms", len(listings), time.Since(start).Milliseconds())
	return buf.Bytes(), len(listings), nil
}

func writeFloat(write func(int, any), col int, v *float64) {
	if v != nil {
		write(col, *v)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
