package models

import "encoding/json"

// Values is an ordered sequence of nullable floats. NaN entries are encoded
// as JSON null and decoded back to NaN.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(v))
	for i, x := range v {
		if IsFinite(x) {
			x := x
			out[i] = &x
		}
	}
	return json.Marshal(out)
}

func (v *Values) UnmarshalJSON(b []byte) error {
	var in []*float64
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(Values, len(in))
	for i, x := range in {
		if x == nil {
			out[i] = Null()
			continue
		}
		out[i] = *x
	}
	*v = out
	return nil
}

// NullValues returns n null entries.
func NullValues(n int) Values {
	out := make(Values, n)
	for i := range out {
		out[i] = Null()
	}
	return out
}

// Grid is the uniform bucket grid. Timestamps are unix millis, strictly
// increasing with step IntervalMs.
type Grid struct {
	Timestamps []int64 `json:"timestamps"`
	IntervalMs int64   `json:"interval_ms"`
	Range      string  `json:"range"`
	Interval   string  `json:"interval"`
}

// Len returns the number of buckets.
func (g Grid) Len() int { return len(g.Timestamps) }

// AlignedSeries holds one value per grid bucket.
type AlignedSeries struct {
	Label  string `json:"label"`
	Values Values `json:"values"`
}

// Dataset is the aligned price matrix handed from the loader to analysis
// and export.
type Dataset struct {
	Grid   Grid            `json:"grid"`
	Series []AlignedSeries `json:"series"`
	Align  string          `json:"align,omitempty"`
}
