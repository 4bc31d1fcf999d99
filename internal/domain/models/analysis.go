package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction describes how a LagResult should be read.
type Direction string

const (
	// DirectionLeads: AssetA moves Lag buckets before AssetB.
	DirectionLeads Direction = "leads"
	// DirectionSynchronous: the best lag was zero.
	DirectionSynchronous Direction = "synchronous"
	// DirectionUndetermined: no lag cleared the minimum sample size.
	DirectionUndetermined Direction = "undetermined"
)

// LagResult is the lead/lag verdict for one unordered asset pair.
type LagResult struct {
	AssetA        string
	AssetB        string
	Lag           int
	Correlation   float64
	SampleSize    int
	Direction     Direction
	PValue        float64
	ConfidencePct float64
}

type lagResultJSON struct {
	AssetA        string    `json:"assetA"`
	AssetB        string    `json:"assetB"`
	Lag           int       `json:"lag"`
	Correlation   *float64  `json:"correlation"`
	SampleSize    int       `json:"sampleSize"`
	Direction     Direction `json:"direction"`
	PValue        *float64  `json:"pValue,omitempty"`
	ConfidencePct float64   `json:"confidencePct"`
}

func (r LagResult) MarshalJSON() ([]byte, error) {
	out := lagResultJSON{
		AssetA:        r.AssetA,
		AssetB:        r.AssetB,
		Lag:           r.Lag,
		SampleSize:    r.SampleSize,
		Direction:     r.Direction,
		ConfidencePct: r.ConfidencePct,
	}
	if IsFinite(r.Correlation) {
		c := r.Correlation
		out.Correlation = &c
	}
	if IsFinite(r.PValue) {
		p := r.PValue
		out.PValue = &p
	}
	return json.Marshal(out)
}

func (r *LagResult) UnmarshalJSON(b []byte) error {
	var in lagResultJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = LagResult{
		AssetA:        in.AssetA,
		AssetB:        in.AssetB,
		Lag:           in.Lag,
		Correlation:   Null(),
		SampleSize:    in.SampleSize,
		Direction:     in.Direction,
		PValue:        Null(),
		ConfidencePct: in.ConfidencePct,
	}
	if in.Correlation != nil {
		r.Correlation = *in.Correlation
	}
	if in.PValue != nil {
		r.PValue = *in.PValue
	}
	return nil
}

// AnalysisReport is the output of one analysis run. Processed holds the
// return (or residual) series the scan was computed on.
type AnalysisReport struct {
	IntervalLabel string          `json:"intervalLabel"`
	Mode          string          `json:"mode"`
	Transform     string          `json:"transform"`
	Residualized  bool            `json:"residualized"`
	Rows          []LagResult     `json:"rows"`
	Processed     []AlignedSeries `json:"processed,omitempty"`
}

// AnalysisRun stamps a report with identity and wall-clock time.
type AnalysisRun struct {
	ID        uuid.UUID      `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Dataset   Dataset        `json:"dataset"`
	Report    AnalysisReport `json:"report"`
}
