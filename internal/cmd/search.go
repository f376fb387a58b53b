package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/observability"
	"github.com/ev119/erlocator/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find emergency rooms near a coordinate",
	Long: `Find emergency rooms near a coordinate.

With --with-status each result is enriched with live bed counts (hvec, hvgc)
from the realtime service. Quota exhaustion on the realtime service never fails
the search; the base results are returned unchanged.`,
	Example: `  erlocator search --lon 127.0276 --lat 37.4979
  erlocator search --lon 127.0276 --lat 37.4979 --with-status --output-format json`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Float64("lon", 0, "longitude (WGS84)")
	searchCmd.Flags().Float64("lat", 0, "latitude (WGS84)")
	searchCmd.Flags().Int("page", core.DefaultPageNo, "result page number")
	searchCmd.Flags().Int("rows", core.DefaultNumOfRows, "results per page")
	searchCmd.Flags().Bool("with-status", false, "enrich results with realtime bed availability")
	searchCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|markdown|json")
	searchCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	_ = searchCmd.MarkFlagRequired("lon")
	_ = searchCmd.MarkFlagRequired("lat")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := searchQueryFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	withStatus, _ := cmd.Flags().GetBool("with-status")
	outPath, _ := cmd.Flags().GetString("out")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := buildPipeline(ctx, cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	defer p.Close() // nolint:errcheck // best-effort cleanup

	list, report, err := executeSearch(ctx, p.Orchestrator, q, withStatus)
	if err != nil {
		return err
	}
	if report != nil && observability.CLILogger != nil {
		observability.CLILogger.Debug("Enrichment finished",
			zap.String("outcome", string(report.Outcome)),
			zap.Int("matched", report.MatchedItems),
			zap.Int("realtime_requests", report.RealtimeRequests))
	}

	rendered, err := output.NewFormatter(format).FormatFacilities(list, report)
	if err != nil {
		return err
	}

	sink, err := openSink(cmd, outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func executeSearch(ctx context.Context, svc *engine.Orchestrator, q core.GeoQuery, withStatus bool) (*core.FacilityList, *engine.MergeReport, error) {
	if !withStatus {
		list, err := svc.Search(ctx, q)
		return list, nil, err
	}
	list, report, err := svc.Merge(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return list, &report, nil
}

func searchQueryFromFlags(cmd *cobra.Command) (core.GeoQuery, error) {
	flags := cmd.Flags()
	lon, _ := flags.GetFloat64("lon")
	lat, _ := flags.GetFloat64("lat")
	page, _ := flags.GetInt("page")
	rows, _ := flags.GetInt("rows")

	var problems []string
	if lon < -180 || lon > 180 {
		problems = append(problems, "--lon must be between -180 and 180")
	}
	if lat < -90 || lat > 90 {
		problems = append(problems, "--lat must be between -90 and 90")
	}
	if page < 1 {
		problems = append(problems, "--page must be at least 1")
	}
	if rows < 1 || rows > 1000 {
		problems = append(problems, "--rows must be between 1 and 1000")
	}
	if len(problems) > 0 {
		return core.GeoQuery{}, fmt.Errorf("invalid search: %s", strings.Join(problems, "; "))
	}

	return core.GeoQuery{Longitude: lon, Latitude: lat, PageNo: page, NumOfRows: rows}.Normalize(), nil
}
