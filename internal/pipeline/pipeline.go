package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/couchcryptid/cmorph-ingest/internal/observability"
)

// Decoder reads one day of CMORPH data from a local file.
type Decoder interface {
	Decode(path string, t time.Time) (domain.Grid, error)
}

// Transformer reshapes a decoded grid before it is aggregated or written.
type Transformer interface {
	Transform(g domain.Grid) (domain.Grid, error)
}

// Sink appends time-steps to the output dataset.
type Sink interface {
	Append(g domain.Grid) error
}

// Fetcher downloads a day of data into dir and returns the local path.
type Fetcher interface {
	FetchDaily(ctx context.Context, obs domain.ObsType, day time.Time, dir string) (string, error)
}

// Notifier announces written time-steps.
type Notifier interface {
	Notify(ctx context.Context, event domain.StepWritten) error
}

// LocateFunc finds the local file for a day. A missing day must be reported
// with an error wrapping fs.ErrNotExist.
type LocateFunc func(dir string, obs domain.ObsType, day time.Time) (string, error)

// Options configure a run.
type Options struct {
	Dir        string
	OutFile    string
	ObsType    domain.ObsType
	Aggregator domain.Aggregator
	Locate     LocateFunc

	// Fetcher is consulted for days missing from Dir. Nil disables downloads.
	Fetcher Fetcher
	// Notifier is told about every written time-step. Nil disables notifications.
	Notifier Notifier
	// CleanUp removes files downloaded for a month once the month is processed.
	CleanUp bool
}

// Pipeline drives decode, transform, aggregate and write for a date range,
// one time-step at a time.
type Pipeline struct {
	decoder     Decoder
	transformer Transformer
	sink        Sink
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	ready       atomic.Bool

	mu       sync.Mutex
	progress domain.Progress
}

// New creates a Pipeline with the given stages and observability.
func New(d Decoder, t Transformer, s Sink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		decoder:     d,
		transformer: t,
		sink:        s,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once at least one time-step has been written.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no time-step has been written yet")
	}
	return nil
}

// Progress reports how many time-steps of the current run have been written.
func (p *Pipeline) Progress() domain.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// RunDaily writes one time-step per day of r. Any missing or unreadable day
// stops the run.
func (p *Pipeline) RunDaily(ctx context.Context, r domain.DateRange) error {
	days := r.Days()
	p.begin(domain.AggregationDaily, len(days))
	defer p.metrics.PipelineRunning.Set(0)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", day.Format(domain.DateLayout), err)
		}
		if err := p.processDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// RunMonthly writes one aggregated time-step per month touched by r. Missing
// days are skipped as long as the month keeps enough coverage.
func (p *Pipeline) RunMonthly(ctx context.Context, r domain.DateRange) error {
	months := r.Months()
	p.begin(domain.AggregationMonthly, len(months))
	defer p.metrics.PipelineRunning.Set(0)

	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", month.Format("2006-01"), err)
		}
		if err := p.processMonth(ctx, month); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) begin(agg domain.Aggregation, total int) {
	p.logger.Info("pipeline started", "aggregation", agg, "steps", total,
		"obs_type", p.opts.ObsType, "out_file", p.opts.OutFile)
	p.metrics.PipelineRunning.Set(1)

	p.mu.Lock()
	p.progress = domain.Progress{Aggregation: agg, Total: total}
	p.mu.Unlock()
}

func (p *Pipeline) processDay(ctx context.Context, day time.Time) error {
	start := time.Now()

	path, _, err := p.locate(ctx, day)
	if err != nil {
		return err
	}
	g, err := p.load(path, day)
	if err != nil {
		return err
	}
	if err := p.sink.Append(g); err != nil {
		return err
	}
	p.stepWritten(ctx, domain.AggregationDaily, g, 1, start)
	return nil
}

func (p *Pipeline) processMonth(ctx context.Context, month time.Time) error {
	start := time.Now()

	var downloaded []string
	if p.opts.CleanUp {
		defer func() { p.cleanUp(downloaded) }()
	}

	var grids []domain.Grid
	for _, day := range domain.MonthDays(month) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted at %s: %w", day.Format(domain.DateLayout), err)
		}

		path, fetched, err := p.locate(ctx, day)
		if errors.Is(err, fs.ErrNotExist) {
			p.metrics.MissingDays.Inc()
			p.logger.Warn("no data for day, skipping", "date", day.Format(domain.DateLayout))
			continue
		}
		if err != nil {
			return err
		}
		if fetched {
			downloaded = append(downloaded, path)
		}

		g, err := p.load(path, day)
		if err != nil {
			return err
		}
		grids = append(grids, g)
	}

	g, err := p.opts.Aggregator.Aggregate(month, grids)
	if err != nil {
		return err
	}
	g.ObsType = p.opts.ObsType
	if err := p.sink.Append(g); err != nil {
		return err
	}
	p.stepWritten(ctx, domain.AggregationMonthly, g, len(grids), start)
	return nil
}

// locate returns the local path for day, downloading it when a Fetcher is set.
// fetched reports whether the file was downloaded by this call.
func (p *Pipeline) locate(ctx context.Context, day time.Time) (path string, fetched bool, err error) {
	path, err = p.opts.Locate(p.opts.Dir, p.opts.ObsType, day)
	if err == nil || p.opts.Fetcher == nil || !errors.Is(err, fs.ErrNotExist) {
		return path, false, err
	}
	path, err = p.opts.Fetcher.FetchDaily(ctx, p.opts.ObsType, day, p.opts.Dir)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// load decodes and transforms one day.
func (p *Pipeline) load(path string, day time.Time) (domain.Grid, error) {
	g, err := p.decoder.Decode(path, day)
	if err != nil {
		p.metrics.DecodeErrors.Inc()
		return domain.Grid{}, err
	}
	p.metrics.FilesDecoded.Inc()
	g.ObsType = p.opts.ObsType

	g, err = p.transformer.Transform(g)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("transform %s: %w", day.Format(domain.DateLayout), err)
	}
	p.logger.Debug("decoded", "file", path, "date", day.Format(domain.DateLayout), "valid_cells", g.ValidCells())
	return g, nil
}

func (p *Pipeline) stepWritten(ctx context.Context, agg domain.Aggregation, g domain.Grid, sourceDays int, start time.Time) {
	p.metrics.StepsWritten.WithLabelValues(string(agg)).Inc()
	p.metrics.StepDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	period := g.Time.Format(domain.DateLayout)
	p.mu.Lock()
	p.progress.Written++
	p.progress.LastPeriod = period
	p.mu.Unlock()

	p.logger.Info("time-step written", "period", period, "aggregation", agg,
		"source_days", sourceDays, "valid_cells", g.ValidCells())

	if p.opts.Notifier == nil {
		return
	}
	event := domain.NewStepWritten(p.opts.OutFile, agg, g, sourceDays)
	if err := p.opts.Notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("step notification failed", "error", err, "period", period)
	}
}

func (p *Pipeline) cleanUp(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("remove downloaded file failed", "file", path, "error", err)
			continue
		}
		p.logger.Debug("removed downloaded file", "file", path)
	}
}
