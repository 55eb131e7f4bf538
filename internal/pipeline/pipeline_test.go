package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/couchcryptid/cmorph-ingest/internal/observability"
	"github.com/couchcryptid/cmorph-ingest/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockDecoder returns a 2x2 grid whose values equal the day of month.
type mockDecoder struct {
	failOn map[string]error
	paths  []string
}

func (m *mockDecoder) Decode(path string, t time.Time) (domain.Grid, error) {
	m.paths = append(m.paths, path)
	if err := m.failOn[t.Format(domain.DateLayout)]; err != nil {
		return domain.Grid{}, err
	}
	v := float32(t.Day())
	return domain.Grid{
		Time:   t,
		Lats:   []float32{30, 31},
		Lons:   []float32{250, 251},
		Values: []float32{v, v, v, v},
	}, nil
}

type mockSink struct {
	appended []domain.Grid
	err      error
}

func (m *mockSink) Append(g domain.Grid) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, g)
	return nil
}

type mockFetcher struct {
	calls   []time.Time
	missing map[string]bool
	err     error
}

func (m *mockFetcher) FetchDaily(_ context.Context, obs domain.ObsType, day time.Time, dir string) (string, error) {
	m.calls = append(m.calls, day)
	if m.err != nil {
		return "", m.err
	}
	if m.missing[day.Format(domain.DateLayout)] {
		return "", fmt.Errorf("%w: not in archive: %w", domain.ErrIO, fs.ErrNotExist)
	}
	path := filepath.Join(dir, domain.DailyFileName(obs, day)+obs.ArchiveExt(day))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type mockNotifier struct {
	events []domain.StepWritten
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, e domain.StepWritten) error {
	m.events = append(m.events, e)
	return m.err
}

// locateExcept pretends every day except the listed ones exists locally.
func locateExcept(missing ...string) pipeline.LocateFunc {
	skip := map[string]bool{}
	for _, d := range missing {
		skip[d] = true
	}
	return func(dir string, obs domain.ObsType, day time.Time) (string, error) {
		if skip[day.Format(domain.DateLayout)] {
			return "", fmt.Errorf("%w: no file: %w", domain.ErrIO, fs.ErrNotExist)
		}
		return filepath.Join(dir, domain.DailyFileName(obs, day)), nil
	}
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dateRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	s, err := domain.ParseDate(start)
	require.NoError(t, err)
	e, err := domain.ParseDate(end)
	require.NoError(t, err)
	r, err := domain.NewDateRange(s, e)
	require.NoError(t, err)
	return r
}

func baseOptions() pipeline.Options {
	return pipeline.Options{
		Dir:        "/data/cmorph",
		OutFile:    "/data/out.nc",
		ObsType:    domain.ObsRaw,
		Aggregator: domain.Aggregator{Statistic: domain.StatMean, MinCoverage: domain.DefaultMinCoverage},
		Locate:     locateExcept(),
	}
}

// --- daily ---

func TestPipeline_RunDaily_HappyPath(t *testing.T) {
	dec := &mockDecoder{}
	sink := &mockSink{}
	p := pipeline.New(dec, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), baseOptions())

	require.Error(t, p.CheckReadiness(context.Background()))

	err := p.RunDaily(context.Background(), dateRange(t, "2020-01-30", "2020-02-02"))
	require.NoError(t, err)

	require.Len(t, sink.appended, 4)
	for i, g := range sink.appended {
		assert.Equal(t, domain.ObsRaw, g.ObsType)
		if i > 0 {
			assert.True(t, g.Time.After(sink.appended[i-1].Time))
		}
	}
	assert.Equal(t, float32(2), sink.appended[3].Values[0])
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, domain.Progress{
		Aggregation: domain.AggregationDaily,
		Written:     4,
		Total:       4,
		LastPeriod:  "2020-02-02",
	}, p.Progress())
}

func TestPipeline_RunDaily_MissingDayFails(t *testing.T) {
	opts := baseOptions()
	opts.Locate = locateExcept("2020-01-02")
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), opts)

	err := p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-03"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIO)
	assert.Len(t, sink.appended, 1, "days before the gap are written, nothing after")
}

func TestPipeline_RunDaily_DecodeErrorFails(t *testing.T) {
	dec := &mockDecoder{failOn: map[string]error{
		"2020-01-02": fmt.Errorf("%w: got 10 bytes", domain.ErrFormat),
	}}
	sink := &mockSink{}
	p := pipeline.New(dec, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), baseOptions())

	err := p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-03"))
	assert.ErrorIs(t, err, domain.ErrFormat)
	assert.Len(t, sink.appended, 1)
}

func TestPipeline_RunDaily_SinkErrorFails(t *testing.T) {
	sink := &mockSink{err: fmt.Errorf("%w: time not increasing", domain.ErrIO)}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), baseOptions())

	err := p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-03"))
	assert.ErrorIs(t, err, domain.ErrIO)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunDaily_SubsetsToCONUS(t *testing.T) {
	sink := &mockSink{}
	box := domain.BoundingBox{MinLat: 30.5, MaxLat: 40, MinLon: 232, MaxLon: 295}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(&box), sink, discardLogger(), newTestMetrics(), baseOptions())

	require.NoError(t, p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-01")))
	require.Len(t, sink.appended, 1)
	assert.Equal(t, []float32{31}, sink.appended[0].Lats)
	assert.Equal(t, []float32{250, 251}, sink.appended[0].Lons)
}

func TestPipeline_RunDaily_FetchesMissingDays(t *testing.T) {
	dir := t.TempDir()
	opts := baseOptions()
	opts.Dir = dir
	opts.Locate = locateExcept("2020-01-02")
	fetcher := &mockFetcher{}
	opts.Fetcher = fetcher

	dec := &mockDecoder{}
	p := pipeline.New(dec, pipeline.NewTransformer(nil), &mockSink{}, discardLogger(), newTestMetrics(), opts)

	require.NoError(t, p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-03")))
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "2020-01-02", fetcher.calls[0].Format(domain.DateLayout))
	assert.Equal(t, filepath.Join(dir, "CMORPH_V1.0_RAW_0.25deg-DLY_00Z_20200102.bz2"), dec.paths[1])
}

func TestPipeline_RunDaily_NetworkErrorFails(t *testing.T) {
	opts := baseOptions()
	opts.Locate = locateExcept("2020-01-01")
	opts.Fetcher = &mockFetcher{err: fmt.Errorf("%w: status 503", domain.ErrNetwork)}

	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), &mockSink{}, discardLogger(), newTestMetrics(), opts)
	err := p.RunDaily(context.Background(), dateRange(t, "2020-01-01", "2020-01-01"))
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestPipeline_RunDaily_ContextCancellation(t *testing.T) {
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), baseOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.RunDaily(ctx, dateRange(t, "2020-01-01", "2020-01-03"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.appended)
}

func TestPipeline_NotifiesWrittenSteps(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	notifier := &mockNotifier{err: errors.New("broker unavailable")}
	opts := baseOptions()
	opts.Notifier = notifier

	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), &mockSink{}, discardLogger(), newTestMetrics(), opts)
	require.NoError(t, p.RunDaily(context.Background(), dateRange(t, "2020-01-05", "2020-01-06")),
		"notification failures do not fail the run")

	require.Len(t, notifier.events, 2)
	want := domain.StepWritten{
		OutFile:     "/data/out.nc",
		Period:      time.Date(2020, time.January, 5, 0, 0, 0, 0, time.UTC),
		Aggregation: domain.AggregationDaily,
		ObsType:     domain.ObsRaw,
		NLat:        2,
		NLon:        2,
		ValidCells:  4,
		MaxPrcp:     5,
		SourceDays:  1,
		WrittenAt:   fakeClock.Now(),
	}
	if diff := cmp.Diff(want, notifier.events[0]); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

// --- monthly ---

func TestPipeline_RunMonthly_MeanPerMonth(t *testing.T) {
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), baseOptions())

	require.NoError(t, p.RunMonthly(context.Background(), dateRange(t, "2021-02-10", "2021-03-05")))

	require.Len(t, sink.appended, 2)
	feb, mar := sink.appended[0], sink.appended[1]
	assert.Equal(t, time.Date(2021, time.February, 1, 0, 0, 0, 0, time.UTC), feb.Time)
	assert.Equal(t, time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), mar.Time)
	// Mean of 1..28 and 1..31.
	assert.InDelta(t, 14.5, feb.Values[0], 1e-5)
	assert.InDelta(t, 16, mar.Values[0], 1e-5)
	assert.Equal(t, domain.ObsRaw, feb.ObsType)
}

func TestPipeline_RunMonthly_Sum(t *testing.T) {
	opts := baseOptions()
	opts.Aggregator.Statistic = domain.StatSum
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), opts)

	require.NoError(t, p.RunMonthly(context.Background(), dateRange(t, "2021-02-01", "2021-02-28")))
	require.Len(t, sink.appended, 1)
	assert.InDelta(t, 406, sink.appended[0].Values[0], 1e-4)
}

func TestPipeline_RunMonthly_ToleratesMissingDays(t *testing.T) {
	opts := baseOptions()
	opts.Locate = locateExcept("2021-02-27", "2021-02-28")
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), opts)

	require.NoError(t, p.RunMonthly(context.Background(), dateRange(t, "2021-02-01", "2021-02-28")))
	require.Len(t, sink.appended, 1)
	assert.InDelta(t, 13.5, sink.appended[0].Values[0], 1e-5) // mean of 1..26
}

func TestPipeline_RunMonthly_InsufficientCoverage(t *testing.T) {
	var missing []string
	for d := 1; d <= 10; d++ {
		missing = append(missing, fmt.Sprintf("2021-02-%02d", d))
	}
	opts := baseOptions()
	opts.Locate = locateExcept(missing...)
	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), opts)

	err := p.RunMonthly(context.Background(), dateRange(t, "2021-02-01", "2021-02-28"))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Empty(t, sink.appended)
}

func TestPipeline_RunMonthly_DownloadAndCleanUp(t *testing.T) {
	dir := t.TempDir()
	opts := baseOptions()
	opts.Dir = dir
	opts.Locate = locateExcept("2021-02-03", "2021-02-04")
	opts.Fetcher = &mockFetcher{missing: map[string]bool{"2021-02-04": true}}
	opts.CleanUp = true

	sink := &mockSink{}
	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), sink, discardLogger(), newTestMetrics(), opts)

	require.NoError(t, p.RunMonthly(context.Background(), dateRange(t, "2021-02-01", "2021-02-28")))
	require.Len(t, sink.appended, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded files are removed after the month is written")
}

func TestPipeline_RunMonthly_KeepsDownloadsWithoutCleanUp(t *testing.T) {
	dir := t.TempDir()
	opts := baseOptions()
	opts.Dir = dir
	opts.Locate = locateExcept("2021-02-03")
	opts.Fetcher = &mockFetcher{}

	p := pipeline.New(&mockDecoder{}, pipeline.NewTransformer(nil), &mockSink{}, discardLogger(), newTestMetrics(), opts)
	require.NoError(t, p.RunMonthly(context.Background(), dateRange(t, "2021-02-01", "2021-02-28")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
