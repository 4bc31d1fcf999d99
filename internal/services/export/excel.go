package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"LagScope/internal/domain/models"
	"LagScope/pkg/util"
)

const (
	SheetPrices    = "Preise"
	SheetProcessed = "Prozent"
	SheetLeadLag   = "LeadLag"
)

// WriteXLSX writes a workbook with prices, processed values and the lead/lag
// table on separate sheets. Nulls are left as empty cells.
func WriteXLSX(w io.Writer, ds models.Dataset, report models.AnalysisReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetPrices); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetProcessed, SheetLeadLag} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	if err := writeSeriesSheet(f, SheetPrices, ds.Grid, ds.Series); err != nil {
		return err
	}
	if err := writeSeriesSheet(f, SheetProcessed, ds.Grid, report.Processed); err != nil {
		return err
	}
	if err := writeLeadLagSheet(f, report.Rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSeriesSheet(f *excelize.File, sheet string, g models.Grid, series []models.AlignedSeries) error {
	head := make([]interface{}, 0, g.Len()+1)
	stamps := make([]interface{}, 0, g.Len()+1)
	head = append(head, "")
	stamps = append(stamps, len(series))
	for _, ts := range g.Timestamps {
		head = append(head, timeHeader)
		stamps = append(stamps, util.FormatMillisISO(ts))
	}
	rows := [][]interface{}{head, stamps}
	for _, s := range series {
		row := make([]interface{}, 0, len(s.Values)+1)
		row = append(row, s.Label)
		for _, v := range s.Values {
			row = append(row, cellValue(v))
		}
		rows = append(rows, row)
	}
	return setRows(f, sheet, rows)
}

func writeLeadLagSheet(f *excelize.File, results []models.LagResult) error {
	rows := make([][]interface{}, 0, len(results)+1)
	head := make([]interface{}, len(leadLagHeader))
	for i, h := range leadLagHeader {
		head[i] = h
	}
	rows = append(rows, head)
	for _, r := range results {
		rows = append(rows, []interface{}{r.AssetA, r.AssetB, cellValue(round1(r.ConfidencePct)), r.Lag})
	}
	return setRows(f, SheetLeadLag, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cellValue(v float64) interface{} {
	if !models.IsFinite(v) {
		return nil
	}
	return v
}

func round1(v float64) float64 {
	if !models.IsFinite(v) {
		return v
	}
	return math.Round(v*10) / 10
}
