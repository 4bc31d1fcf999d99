package models

import (
	"encoding/json"
	"math"
)

// Null returns the sentinel used for a missing price or return.
func Null() float64 { return math.NaN() }

// IsNull reports whether v is the missing-value sentinel.
func IsNull(v float64) bool { return math.IsNaN(v) }

// IsFinite reports whether v is a usable number (not null, not ±Inf).
func IsFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RawPoint is a provider-native observation. Timestamp is unix millis;
// Value is NaN when the provider reported no price.
type RawPoint struct {
	Timestamp int64
	Value     float64
}

type rawPointJSON struct {
	T int64    `json:"t"`
	V *float64 `json:"v"`
}

func (p RawPoint) MarshalJSON() ([]byte, error) {
	out := rawPointJSON{T: p.Timestamp}
	if IsFinite(p.Value) {
		v := p.Value
		out.V = &v
	}
	return json.Marshal(out)
}

func (p *RawPoint) UnmarshalJSON(b []byte) error {
	var in rawPointJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.Timestamp = in.T
	p.Value = Null()
	if in.V != nil {
		p.Value = *in.V
	}
	return nil
}

// AssetKind separates crypto assets from equities/ETFs.
type AssetKind string

const (
	AssetCrypto AssetKind = "crypto"
	AssetEquity AssetKind = "equity"
)

// Asset identifies an instrument at a provider. Crypto assets are keyed by
// provider ID (e.g. "bitcoin"), equities by ticker.
type Asset struct {
	Kind   AssetKind `json:"kind" validate:"required,oneof=crypto equity"`
	ID     string    `json:"id,omitempty"`
	Symbol string    `json:"symbol,omitempty"`
	Name   string    `json:"name,omitempty"`

	Region   string `json:"region,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Key returns the identifier used for de-duplication and cache keys.
func (a Asset) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Symbol
}

// Label returns the display label carried by aligned series.
func (a Asset) Label() string {
	sym := a.Symbol
	if sym == "" {
		sym = a.ID
	}
	if a.Name == "" {
		return sym
	}
	return sym + " • " + a.Name
}

// PointSeries is a raw, irregularly sampled series for one asset.
type PointSeries struct {
	Label  string     `json:"label"`
	Asset  Asset      `json:"asset"`
	Points []RawPoint `json:"points"`
}

// PointMessage is the ingestion payload on the points topic: a batch of raw
// observations for one asset.
type PointMessage struct {
	Asset  string     `json:"asset" validate:"required"`
	Source string     `json:"source"`
	Points []RawPoint `json:"points" validate:"required,min=1"`
}
