package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"LagScope/internal/domain/models"
	"LagScope/internal/services/export"
	"LagScope/internal/services/leadlag"
	"LagScope/internal/services/resample"
	"LagScope/internal/usecase"
	applogger "LagScope/pkg/logger"
	xutil "LagScope/pkg/util"
)

// analyzeInput is the offline input file: raw point series per asset.
type analyzeInput struct {
	Series []models.PointSeries `json:"series"`
}

type gridFlags struct {
	rangeKey string
	interval string
	now      string
}

func (f *gridFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rangeKey, "range", "1d", "look-back range (12h|1d|7d|14d|30d|max)")
	cmd.Flags().StringVar(&f.interval, "interval", "5m", "bucket width (1m|5m|15m|1h|4h|1d|1w)")
	cmd.Flags().StringVar(&f.now, "now", "", "grid end time (RFC3339 or unix seconds); default now")
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "lagscope",
		Short:        "Lead/lag analysis of aligned price series",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	logger := func(cmd *cobra.Command) *applogger.Logger {
		l, err := applogger.New(&applogger.Config{Level: logLevel, Format: "console", Output: "stderr"})
		if err != nil {
			return applogger.NewWriter(cmd.ErrOrStderr(), "warn")
		}
		return l
	}

	root.AddCommand(gridCmd(), analyzeCmd(logger))
	return root
}

func gridCmd() *cobra.Command {
	var gf gridFlags
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the bucket grid for a range and interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			grid, err := resample.BuildGrid(gf.rangeKey, gf.interval, xutil.ParseTimeDefault(gf.now, time.Now()))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), grid)
		},
	}
	gf.register(cmd)
	return cmd
}

func analyzeCmd(logger func(*cobra.Command) *applogger.Logger) *cobra.Command {
	var (
		gf          gridFlags
		input       string
		output      string
		format      string
		align       string
		transform   string
		mode        string
		residualize bool
		workers     int
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Align raw point series from a file and rate every pair",
		Long: `Reads {"series":[{"label":..., "points":[{"t":ms,"v":price}]}]} from --input,
aligns it onto the grid and writes the analysis run.

Examples:
  lagscope analyze --input prices.json --range 7d --interval 1h
  lagscope analyze --input prices.json --format csv --output leadlag.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			policy, err := resample.ParsePolicy(align)
			if err != nil {
				return err
			}
			grid, err := resample.BuildGrid(gf.rangeKey, gf.interval, xutil.ParseTimeDefault(gf.now, latest(in.Series)))
			if err != nil {
				return err
			}
			for i := range in.Series {
				if in.Series[i].Label == "" {
					in.Series[i].Label = in.Series[i].Asset.Label()
				}
			}
			aligned, err := resample.Align(grid, in.Series, policy)
			if err != nil {
				return err
			}

			runner := usecase.NewAnalysisRunner(usecase.WithRunnerLogger(logger(cmd)), usecase.WithWorkers(workers))
			run, err := runner.Run(cmd.Context(), models.Dataset{Grid: grid, Series: aligned, Align: string(policy)}, leadlag.Config{
				Transform:   leadlag.Transform(transform),
				Residualize: residualize,
				Mode:        leadlag.Mode(mode),
			})
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return writeRun(cmd.OutOrStdout(), format, run)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := writeRun(f, format, run); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close output: %w", err)
			}
			return nil
		},
	}
	gf.register(cmd)
	cmd.Flags().StringVarP(&input, "input", "i", "-", "input JSON file (- for stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|csv|xlsx)")
	cmd.Flags().StringVar(&align, "align", string(resample.DefaultPolicy()), "align policy (nearest|linear)")
	cmd.Flags().StringVar(&transform, "transform", string(leadlag.DefaultTransform()), "return transform (log|pct_base|pct_prev)")
	cmd.Flags().StringVar(&mode, "mode", string(leadlag.DefaultMode()), "lag estimator (global|windowed)")
	cmd.Flags().BoolVar(&residualize, "residualize", false, "remove the cross-sectional market factor first")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent pair scans (0 = GOMAXPROCS)")
	return cmd
}

func writeRun(w io.Writer, format string, run models.AnalysisRun) error {
	switch format {
	case "json":
		return writeJSON(w, run)
	case "csv":
		return export.WriteCSV(w, run.Dataset, run.Report)
	case "xlsx":
		return export.WriteXLSX(w, run.Dataset, run.Report)
	default:
		return fmt.Errorf("unknown format %q (json|csv|xlsx)", format)
	}
}

func readInput(path string, stdin io.Reader) (analyzeInput, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return analyzeInput{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	var in analyzeInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return analyzeInput{}, fmt.Errorf("decode input: %w", err)
	}
	return in, nil
}

// latest returns the newest point time so offline grids end at the data,
// not at the wall clock.
func latest(series []models.PointSeries) time.Time {
	var newest int64
	found := false
	for _, s := range series {
		for _, p := range s.Points {
			if !found || p.Timestamp > newest {
				newest, found = p.Timestamp, true
			}
		}
	}
	if !found {
		return time.Now()
	}
	return time.UnixMilli(newest).UTC()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
