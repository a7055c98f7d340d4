package report

import (
	"fmt"
	"io"
	"lotwatch/internal/store"
	"strings"

	"github.com/xuri/excelize/v2"
)

const opportunitiesSheet = "Opportunities"

var xlsxHeader = []any{
	"Rank", "Lot", "Title", "Location", "Current bid", "Retail", "Instant win",
	"Predicted close", "Discount %", "Score", "Bids", "Closes", "URL", "Reasons",
}

// WriteXLSX writes the opportunities as a single sheet spreadsheet.
func WriteXLSX(w io.Writer, list []store.Opportunity) error {
	f := excelize.NewFile()
	defer f.Close()

	err := f.SetSheetName("Sheet1", opportunitiesSheet)
	if err != nil {
		return err
	}
	err = f.SetSheetRow(opportunitiesSheet, "A1", &xlsxHeader)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	err = f.SetRowStyle(opportunitiesSheet, 1, 1, bold)
	if err != nil {
		return err
	}

	for i, o := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			i + 1,
			o.Lot.ID,
			o.Lot.Title,
			o.Lot.Location,
			o.Lot.CurrentBid.InexactFloat64(),
			o.Lot.RetailPrice.InexactFloat64(),
			o.Lot.InstantWinPrice.InexactFloat64(),
			o.PredictedClose.InexactFloat64(),
			o.DiscountPct,
			o.Score,
			o.Lot.BidCount,
			formatTime(o.Lot.ClosesAt),
			o.Lot.URL,
			strings.Join(o.Reasons, "; "),
		}
		err = f.SetSheetRow(opportunitiesSheet, cell, &row)
		if err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	err = f.SetColWidth(opportunitiesSheet, "C", "C", 60)
	if err != nil {
		return err
	}
	err = f.SetPanes(opportunitiesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
