package providers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/service"
	"LagScope/pkg/util"
)

const stooqURL = "https://stooq.com"

// Stooq serves daily equity closes as CSV without an API key.
type Stooq struct {
	base
}

var _ service.PriceProvider = (*Stooq)(nil)

func NewStooq(opts ...Option) *Stooq {
	return &Stooq{base: newBase("stooq", buildOptions(stooqURL, opts))}
}

func (p *Stooq) Supports(a models.Asset) bool {
	return a.Kind == models.AssetEquity && a.Symbol != ""
}

// Fetch ignores the selection; Stooq only has daily bars and the aligner
// handles the mismatch.
func (p *Stooq) Fetch(ctx context.Context, a models.Asset, _ service.Selection) ([]models.RawPoint, error) {
	if !p.Supports(a) {
		return nil, unsupported(p.name, a)
	}
	body, err := p.get(ctx, "/q/d/l/", map[string][]string{
		"s": {strings.ToLower(a.Symbol)},
		"i": {"d"},
	})
	if err != nil {
		return nil, err
	}
	return parseStooqCSV(body)
}

// parseStooqCSV reads Date,Open,High,Low,Close[,Volume]. An unknown symbol
// yields a "No data" body, which is an empty series.
func parseStooqCSV(body []byte) ([]models.RawPoint, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []models.RawPoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stooq read header: %w", err)
	}
	dateCol, closeCol := 0, 4
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}

	out := make([]models.RawPoint, 0, 1024)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stooq read row: %w", err)
		}
		if len(rec) <= closeCol || len(rec) <= dateCol {
			continue
		}
		t, ok := util.ParseDateTimeIn(rec[dateCol], time.UTC)
		if !ok {
			continue
		}
		out = append(out, models.RawPoint{Timestamp: t.UnixMilli(), Value: util.ParseFloatOrNaN(rec[closeCol])})
	}
	return sortPoints(out), nil
}
