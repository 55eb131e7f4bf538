// Package cli wires the daily and monthly ingest commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/adapter/cmorph"
	"github.com/couchcryptid/cmorph-ingest/internal/adapter/cpc"
	httpadapter "github.com/couchcryptid/cmorph-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/cmorph-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/cmorph-ingest/internal/adapter/netcdf"
	"github.com/couchcryptid/cmorph-ingest/internal/config"
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/couchcryptid/cmorph-ingest/internal/observability"
	"github.com/couchcryptid/cmorph-ingest/internal/pipeline"
	"github.com/spf13/cobra"
)

// newMetrics registers the process metrics. Tests swap it for an unregistered set.
var newMetrics = observability.NewMetrics

// runOptions are the per-run command line inputs.
type runOptions struct {
	cmorphDir      string
	outFile        string
	obsType        string
	conusOnly      bool
	startDate      string
	endDate        string
	descriptorFile string

	// monthly only
	download  bool
	statistic string
	cleanUp   bool
}

// NewDailyCommand builds the command that appends one time-step per day.
func NewDailyCommand() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "ingest_cmorph_daily",
		Short: "Append daily CMORPH precipitation to a NetCDF file",
		Long: `Reads CMORPH V1.0 daily binary files from --cmorph_dir and appends one
time-step per day to --out_file, creating it if needed. A missing day fails
the run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), domain.AggregationDaily, o)
		},
	}
	addCommonFlags(cmd, o)
	return cmd
}

// NewMonthlyCommand builds the command that appends one aggregated time-step per month.
func NewMonthlyCommand() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "ingest_cmorph_monthly",
		Short: "Append monthly CMORPH precipitation to a NetCDF file",
		Long: `Aggregates CMORPH V1.0 daily binary files into one time-step per calendar
month and appends them to --out_file, creating it if needed. Missing days are
skipped while the month keeps MONTHLY_MIN_COVERAGE of its days.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), domain.AggregationMonthly, o)
		},
	}
	addCommonFlags(cmd, o)
	f := cmd.Flags()
	f.BoolVar(&o.download, "download_file", false, "download missing daily files and the descriptor from the CPC archive")
	f.StringVar(&o.statistic, "statistic", string(domain.StatMean), "monthly statistic: mean or sum")
	f.BoolVar(&o.cleanUp, "clean_up", false, "remove downloaded daily files once their month is written, and a downloaded descriptor once parsed")
	return cmd
}

func addCommonFlags(cmd *cobra.Command, o *runOptions) {
	f := cmd.Flags()
	f.StringVar(&o.cmorphDir, "cmorph_dir", "", "directory holding CMORPH daily files")
	f.StringVar(&o.outFile, "out_file", "", "NetCDF file to create or append to")
	f.StringVar(&o.obsType, "obs_type", string(domain.ObsRaw), "observation type: adjusted or raw")
	f.BoolVar(&o.conusOnly, "conus_only", false, "keep only the contiguous United States")
	f.StringVar(&o.startDate, "start_date", "", "first day to ingest, YYYY-MM-DD (default: descriptor start)")
	f.StringVar(&o.endDate, "end_date", "", "last day to ingest, YYYY-MM-DD (default: last day of previous month)")
	f.StringVar(&o.descriptorFile, "descriptor_file", "", "GrADS descriptor (default: "+domain.DescriptorFileName+" in --cmorph_dir)")
	_ = cmd.MarkFlagRequired("cmorph_dir")
	_ = cmd.MarkFlagRequired("out_file")
}

// Execute runs cmd and returns the process exit code for its outcome.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return domain.ExitCode(err)
}

func run(ctx context.Context, agg domain.Aggregation, o *runOptions) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := newMetrics()

	obs, err := domain.ParseObsType(o.obsType)
	if err != nil {
		return err
	}
	aggregator := domain.Aggregator{Statistic: domain.StatMean, MinCoverage: cfg.MinCoverage}
	if agg == domain.AggregationMonthly {
		if aggregator.Statistic, err = domain.ParseStatistic(o.statistic); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var client *cpc.Client
	if o.download {
		if err := os.MkdirAll(o.cmorphDir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %w", domain.ErrIO, o.cmorphDir, err)
		}
		client = cpc.NewClient(cfg.BaseURL, cfg.DownloadTimeout, cfg.DownloadMaxRetries, metrics, logger)
	}

	desc, err := loadDescriptor(ctx, o, client, logger)
	if err != nil {
		return err
	}
	r, err := dateRange(o, desc)
	if err != nil {
		return err
	}

	var box *domain.BoundingBox
	if o.conusOnly {
		box = &domain.CONUS
	}

	writer := netcdf.NewWriter(o.outFile, netcdf.Attributes{
		Title:       desc.Title,
		ObsType:     obs,
		Aggregation: agg,
		LongName:    longName(agg, aggregator.Statistic),
	})
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	opts := pipeline.Options{
		Dir:        o.cmorphDir,
		OutFile:    o.outFile,
		ObsType:    obs,
		Aggregator: aggregator,
		Locate:     cmorph.Locate,
		CleanUp:    o.cleanUp,
	}
	if client != nil {
		opts.Fetcher = client
	}
	if cfg.KafkaEnabled() {
		notifier := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts.Notifier = notifier
		logger.Info("step notifications enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(cmorph.NewDecoder(desc), pipeline.NewTransformer(box), writer, logger, metrics, opts)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	start := domain.Now()
	logger.Info("ingest started",
		"aggregation", agg,
		"start_date", r.Start.Format(domain.DateLayout),
		"end_date", r.End.Format(domain.DateLayout),
		"conus_only", o.conusOnly,
		"start_time", start.Format(time.RFC3339))

	if agg == domain.AggregationMonthly {
		err = p.RunMonthly(ctx, r)
	} else {
		err = p.RunDaily(ctx, r)
	}
	if err != nil {
		logger.Error("ingest failed", "error", err, "elapsed", domain.Since(start).String())
		return err
	}

	logger.Info("ingest finished",
		"steps", p.Progress().Written,
		"end_time", domain.Now().Format(time.RFC3339),
		"elapsed", domain.Since(start).String())
	return nil
}

// loadDescriptor reads the descriptor file, downloading it first when a
// client is available. Without either, the published V1.0 layout is used.
// A downloaded descriptor is removed once parsed when clean up is requested.
func loadDescriptor(ctx context.Context, o *runOptions, client *cpc.Client, logger *slog.Logger) (domain.Descriptor, error) {
	path := o.descriptorFile
	if path == "" {
		path = filepath.Join(o.cmorphDir, domain.DescriptorFileName)
	}

	f, err := os.Open(path)
	downloaded := false
	if errors.Is(err, fs.ErrNotExist) && client != nil {
		logger.Info("downloading descriptor", "file", path)
		if err := client.FetchDescriptor(ctx, path); err != nil {
			return domain.Descriptor{}, err
		}
		downloaded = true
		f, err = os.Open(path)
	}
	if errors.Is(err, fs.ErrNotExist) && o.descriptorFile == "" {
		logger.Info("descriptor not found, using built-in layout", "file", path)
		return domain.DefaultDescriptor(), nil
	}
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("%w: open descriptor: %w", domain.ErrIO, err)
	}

	desc, err := domain.ParseDescriptor(f)
	f.Close()
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("descriptor loaded", "file", path, "nlat", desc.Y.Count, "nlon", desc.X.Count)

	if downloaded && o.cleanUp {
		if err := os.Remove(path); err != nil {
			return domain.Descriptor{}, fmt.Errorf("%w: remove descriptor: %w", domain.ErrIO, err)
		}
		logger.Info("removed downloaded descriptor", "file", path)
	}
	return desc, nil
}

func dateRange(o *runOptions, desc domain.Descriptor) (domain.DateRange, error) {
	start := desc.Start
	if o.startDate != "" {
		t, err := domain.ParseDate(o.startDate)
		if err != nil {
			return domain.DateRange{}, err
		}
		start = t
	}
	end := domain.LastDayOfPreviousMonth(domain.Now())
	if o.endDate != "" {
		t, err := domain.ParseDate(o.endDate)
		if err != nil {
			return domain.DateRange{}, err
		}
		end = t
	}
	return domain.NewDateRange(start, end)
}

func longName(agg domain.Aggregation, stat domain.Statistic) string {
	if agg == domain.AggregationMonthly {
		return "Precipitation, monthly " + string(stat)
	}
	return "Precipitation"
}
