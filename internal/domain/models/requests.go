package models

// Requests for lead/lag HTTP endpoints. Defined in domain for consistency and reuse.

type GridRequest struct {
	Range    string `query:"range" json:"range" default:"1d"`
	Interval string `query:"interval" json:"interval" default:"5m"`
	Now      string `query:"now" json:"now"`
}

type SearchRequest struct {
	Kind  string `query:"kind" json:"kind" default:"crypto" validate:"oneof=crypto equity"`
	Query string `query:"q" json:"q" validate:"required,min=1,max=64"`
}

type DatasetRequest struct {
	Assets   []Asset `json:"assets" validate:"required,min=1,max=25,dive"`
	Range    string  `json:"range" default:"1d"`
	Interval string  `json:"interval" default:"5m"`
	Align    string  `json:"align" default:"linear" validate:"oneof=nearest linear"`
	Now      string  `json:"now"`
}

// AnalyzeRequest either names assets to load or carries an already aligned
// dataset inline.
type AnalyzeRequest struct {
	Assets      []Asset  `json:"assets" validate:"omitempty,max=25,dive"`
	Dataset     *Dataset `json:"dataset,omitempty"`
	Range       string   `json:"range" default:"1d"`
	Interval    string   `json:"interval" default:"5m"`
	Align       string   `json:"align" default:"linear" validate:"oneof=nearest linear"`
	Transform   string   `json:"transform" default:"pct_prev" validate:"oneof=log pct_base pct_prev"`
	Mode        string   `json:"mode" default:"global" validate:"oneof=global windowed"`
	Residualize bool     `json:"residualize"`
	Now         string   `json:"now"`
}

type ExportRequest struct {
	Format string `query:"format" default:"csv" validate:"oneof=csv xlsx"`
}
