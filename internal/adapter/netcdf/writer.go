// Package netcdf writes and reads CMORPH precipitation time series as NetCDF
// classic files with an unlimited time dimension.
package netcdf

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/ctessum/cdf"
)

// Variable and dimension names.
const (
	VarTime = "time"
	VarLat  = "lat"
	VarLon  = "lon"
	VarPrcp = "prcp"
)

// Attributes describe an output dataset.
type Attributes struct {
	Title       string
	ObsType     domain.ObsType
	Aggregation domain.Aggregation
	LongName    string
}

// Writer appends grids to a NetCDF file, creating it on the first append if
// it does not exist. It implements pipeline.Sink.
type Writer struct {
	path  string
	attrs Attributes

	ff   *os.File
	f    *cdf.File
	lats []float32
	lons []float32
	nrec int
	last int32
}

// NewWriter creates a Writer for path. No file is touched until the first Append.
func NewWriter(path string, attrs Attributes) *Writer {
	return &Writer{path: path, attrs: attrs}
}

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// Records returns the number of time-steps in the file.
func (w *Writer) Records() int { return w.nrec }

// Append writes g as the next time-step. The grid's time must be later than
// every time already in the file and its coordinates must match the file's.
func (w *Writer) Append(g domain.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if w.f == nil {
		if err := w.open(g); err != nil {
			return err
		}
	}

	if !g.SameCoordinates(domain.Grid{Lats: w.lats, Lons: w.lons}) {
		return fmt.Errorf("%w: %s: grid is %d x %d, file is %d x %d or has different coordinates",
			domain.ErrIO, w.path, len(g.Lats), len(g.Lons), len(w.lats), len(w.lons))
	}

	t := domain.DaysSinceEpoch(g.Time)
	if w.nrec > 0 && t <= w.last {
		return fmt.Errorf("%w: %s: time %s is not after the last stored time %s",
			domain.ErrIO, w.path, g.Time.Format(domain.DateLayout),
			domain.FromDaysSinceEpoch(w.last).Format(domain.DateLayout))
	}

	if _, err := w.f.Writer(VarTime, []int{w.nrec}, nil).Write([]int32{t}); err != nil {
		return fmt.Errorf("%w: write time to %s: %v", domain.ErrIO, w.path, err)
	}
	if _, err := w.f.Writer(VarPrcp, []int{w.nrec, 0, 0}, nil).Write(g.Values); err != nil {
		return fmt.Errorf("%w: write prcp to %s: %v", domain.ErrIO, w.path, err)
	}

	w.nrec++
	w.last = t
	return nil
}

// Close records the final number of time-steps in the header and closes the file.
func (w *Writer) Close() error {
	if w.ff == nil {
		return nil
	}
	err := cdf.UpdateNumRecs(w.ff)
	if cerr := w.ff.Close(); err == nil {
		err = cerr
	}
	w.ff, w.f = nil, nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrIO, w.path, err)
	}
	return nil
}

func (w *Writer) open(g domain.Grid) error {
	_, err := os.Stat(w.path)
	switch {
	case err == nil:
		return w.openExisting()
	case errors.Is(err, fs.ErrNotExist):
		return w.create(g)
	default:
		return fmt.Errorf("%w: stat %s: %v", domain.ErrIO, w.path, err)
	}
}

func (w *Writer) create(g domain.Grid) error {
	ff, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrIO, w.path, err)
	}

	h := newHeader(w.attrs, len(g.Lats), len(g.Lons))
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return fmt.Errorf("%w: write header to %s: %v", domain.ErrIO, w.path, err)
	}

	if _, err := f.Writer(VarLat, []int{0}, []int{len(g.Lats)}).Write(g.Lats); err != nil {
		ff.Close()
		return fmt.Errorf("%w: write lat to %s: %v", domain.ErrIO, w.path, err)
	}
	if _, err := f.Writer(VarLon, []int{0}, []int{len(g.Lons)}).Write(g.Lons); err != nil {
		ff.Close()
		return fmt.Errorf("%w: write lon to %s: %v", domain.ErrIO, w.path, err)
	}

	w.ff, w.f = ff, f
	w.lats = append([]float32(nil), g.Lats...)
	w.lons = append([]float32(nil), g.Lons...)
	w.nrec = 0
	return nil
}

func (w *Writer) openExisting() error {
	ff, err := os.OpenFile(w.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrIO, w.path, err)
	}

	ds, err := readFile(ff)
	if err != nil {
		ff.Close()
		return fmt.Errorf("%w: %s: %v", domain.ErrIO, w.path, err)
	}
	if err := w.checkAttributes(ds); err != nil {
		ff.Close()
		return err
	}

	w.ff, w.f = ff, ds.file
	w.lats, w.lons = ds.Lats, ds.Lons
	w.nrec = len(ds.Times)
	if w.nrec > 0 {
		w.last = domain.DaysSinceEpoch(ds.Times[w.nrec-1])
	}
	return nil
}

func (w *Writer) checkAttributes(ds *Dataset) error {
	if ds.ObsType != "" && ds.ObsType != string(w.attrs.ObsType) {
		return fmt.Errorf("%w: %s holds %s observations, not %s",
			domain.ErrIO, w.path, ds.ObsType, w.attrs.ObsType)
	}
	if ds.Aggregation != "" && ds.Aggregation != string(w.attrs.Aggregation) {
		return fmt.Errorf("%w: %s holds %s time-steps, not %s",
			domain.ErrIO, w.path, ds.Aggregation, w.attrs.Aggregation)
	}
	return nil
}

func newHeader(attrs Attributes, nlat, nlon int) *cdf.Header {
	title := attrs.Title
	if title == "" {
		title = "CMORPH precipitation"
	}
	longName := attrs.LongName
	if longName == "" {
		longName = "Precipitation"
	}

	h := cdf.NewHeader([]string{VarTime, VarLat, VarLon}, []int{0, nlat, nlon})

	h.AddVariable(VarTime, []string{VarTime}, []int32{0})
	h.AddAttribute(VarTime, "standard_name", "time")
	h.AddAttribute(VarTime, "long_name", "Time")
	h.AddAttribute(VarTime, "units", domain.TimeUnits)
	h.AddAttribute(VarTime, "calendar", "gregorian")

	h.AddVariable(VarLat, []string{VarLat}, []float32{0})
	h.AddAttribute(VarLat, "standard_name", "latitude")
	h.AddAttribute(VarLat, "long_name", "Latitude")
	h.AddAttribute(VarLat, "units", "degrees_north")

	h.AddVariable(VarLon, []string{VarLon}, []float32{0})
	h.AddAttribute(VarLon, "standard_name", "longitude")
	h.AddAttribute(VarLon, "long_name", "Longitude")
	h.AddAttribute(VarLon, "units", "degrees_east")

	h.AddVariable(VarPrcp, []string{VarTime, VarLat, VarLon}, []float32{0})
	h.AddAttribute(VarPrcp, "_FillValue", []float32{float32(math.NaN())})
	h.AddAttribute(VarPrcp, "standard_name", "precipitation")
	h.AddAttribute(VarPrcp, "long_name", longName)
	h.AddAttribute(VarPrcp, "units", "mm")
	h.AddAttribute(VarPrcp, "description", title)

	h.AddAttribute("", "title", title)
	h.AddAttribute("", "source", "CMORPH")
	h.AddAttribute("", "obs_type", string(attrs.ObsType))
	h.AddAttribute("", "aggregation", string(attrs.Aggregation))
	h.AddAttribute("", "history", "created "+domain.Now().UTC().Format(time.RFC3339))

	h.Define()
	return h
}
