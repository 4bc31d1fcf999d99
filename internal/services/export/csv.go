// Package export renders an aligned dataset and its lead/lag report as a
// semicolon separated CSV or a three sheet XLSX workbook.
package export

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"LagScope/internal/domain/models"
	"LagScope/pkg/util"
)

const (
	CSVFilename     = "preise_prozent_leadlag.csv"
	CSVContentType  = "text/csv; charset=utf-8"
	XLSXFilename    = "preise_prozent_leadlag.xlsx"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const (
	timeHeader = "Zeit"
	separator  = ";"
)

var leadLagHeader = []string{"Währung A (führt)", "Währung B", "Wahrscheinlichkeit (%)", "Vorlauf (Lags)"}

// WriteCSV writes the prices block, a blank line, the processed block, a
// blank line and the lead/lag table. Nulls are empty fields.
func WriteCSV(w io.Writer, ds models.Dataset, report models.AnalysisReport) error {
	bw := bufio.NewWriter(w)
	lines := make([][]string, 0, 2*len(ds.Series)+len(report.Rows)+7)
	lines = append(lines, seriesBlock(ds.Grid, ds.Series)...)
	lines = append(lines, nil)
	lines = append(lines, seriesBlock(ds.Grid, report.Processed)...)
	lines = append(lines, nil)
	lines = append(lines, leadLagHeader)
	for _, r := range report.Rows {
		lines = append(lines, []string{r.AssetA, r.AssetB, confidenceDE(r.ConfidencePct), strconv.Itoa(r.Lag)})
	}

	for i, fields := range lines {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(csvRow(fields)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// seriesBlock is the header row, the count/timestamp row and one row per
// series.
func seriesBlock(g models.Grid, series []models.AlignedSeries) [][]string {
	head := make([]string, 0, g.Len()+1)
	stamps := make([]string, 0, g.Len()+1)
	head = append(head, "")
	stamps = append(stamps, strconv.Itoa(len(series)))
	for _, ts := range g.Timestamps {
		head = append(head, timeHeader)
		stamps = append(stamps, util.FormatMillisISO(ts))
	}

	out := [][]string{head, stamps}
	for _, s := range series {
		row := make([]string, 0, len(s.Values)+1)
		row = append(row, s.Label)
		for _, v := range s.Values {
			row = append(row, formatNumber(v))
		}
		out = append(out, row)
	}
	return out
}

func csvRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = csvField(f)
	}
	return strings.Join(quoted, separator)
}

// csvField quotes on comma as well as semicolon so German Excel keeps
// decimal-comma text in one cell.
func csvField(s string) string {
	if strings.ContainsAny(s, "\",;\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// formatNumber prints the shortest round-trip decimal; null is empty.
func formatNumber(v float64) string {
	if !models.IsFinite(v) {
		return ""
	}
	if a := math.Abs(v); a != 0 && (a < 1e-6 || a >= 1e21) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func confidenceDE(pct float64) string {
	if !models.IsFinite(pct) {
		return ""
	}
	return strings.Replace(strconv.FormatFloat(pct, 'f', 1, 64), ".", ",", 1)
}
