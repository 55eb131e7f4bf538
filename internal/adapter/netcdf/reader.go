package netcdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/ctessum/cdf"
)

// Dataset is the full content of an output file.
type Dataset struct {
	Times  []time.Time
	Lats   []float32
	Lons   []float32
	Values [][]float32 // one lat-major slice per time-step

	Title       string
	ObsType     string
	Aggregation string
	TimeUnits   string
	PrcpUnits   string

	file *cdf.File
}

// Grid returns time-step i as a grid.
func (ds *Dataset) Grid(i int) domain.Grid {
	return domain.Grid{
		Time:    ds.Times[i],
		ObsType: domain.ObsType(ds.ObsType),
		Lats:    ds.Lats,
		Lons:    ds.Lons,
		Values:  ds.Values[i],
	}
}

// Read loads an output file written by Writer.
func Read(path string) (*Dataset, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrIO, path, err)
	}
	defer ff.Close()

	ds, err := readFile(ff)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIO, path, err)
	}
	for i := range ds.Times {
		values, err := readRecord(ds.file, i, len(ds.Lats)*len(ds.Lons))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read prcp step %d: %v", domain.ErrIO, path, i, err)
		}
		ds.Values = append(ds.Values, values)
	}
	ds.file = nil
	return ds, nil
}

// readFile reads the header, coordinates and times of an open file.
func readFile(ff *os.File) (*Dataset, error) {
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("not a NetCDF classic file: %v", err)
	}
	if err := checkLayout(f.Header); err != nil {
		return nil, err
	}

	info, err := ff.Stat()
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Title:       stringAttr(f.Header, "", "title"),
		ObsType:     stringAttr(f.Header, "", "obs_type"),
		Aggregation: stringAttr(f.Header, "", "aggregation"),
		TimeUnits:   stringAttr(f.Header, VarTime, "units"),
		PrcpUnits:   stringAttr(f.Header, VarPrcp, "units"),
		file:        f,
	}
	if ds.Lats, err = readFloat32(f, VarLat); err != nil {
		return nil, fmt.Errorf("read lat: %v", err)
	}
	if ds.Lons, err = readFloat32(f, VarLon); err != nil {
		return nil, fmt.Errorf("read lon: %v", err)
	}

	nrec := int(f.Header.NumRecs(info.Size()))
	if nrec > 0 {
		r := f.Reader(VarTime, []int{0}, []int{nrec})
		days := make([]int32, nrec)
		if _, err := r.Read(days); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read time: %v", err)
		}
		for _, d := range days {
			ds.Times = append(ds.Times, domain.FromDaysSinceEpoch(d))
		}
	}
	return ds, nil
}

func checkLayout(h *cdf.Header) error {
	have := map[string]bool{}
	for _, v := range h.Variables() {
		have[v] = true
	}
	for _, v := range []string{VarTime, VarLat, VarLon, VarPrcp} {
		if !have[v] {
			return fmt.Errorf("missing variable %q", v)
		}
	}
	if !h.IsRecordVariable(VarTime) || !h.IsRecordVariable(VarPrcp) {
		return errors.New("time and prcp must be record variables")
	}
	if dims := h.Dimensions(VarPrcp); len(dims) != 3 || dims[1] != VarLat || dims[2] != VarLon {
		return fmt.Errorf("prcp has dimensions %v, want [time lat lon]", dims)
	}
	return nil
}

func readFloat32(f *cdf.File, name string) ([]float32, error) {
	r := f.Reader(name, nil, nil)
	buf, ok := r.Zero(-1).([]float32)
	if !ok {
		return nil, fmt.Errorf("%s is not a float variable", name)
	}
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func readRecord(f *cdf.File, i, n int) ([]float32, error) {
	r := f.Reader(VarPrcp, []int{i, 0, 0}, []int{i + 1, 0, 0})
	buf, ok := r.Zero(n).([]float32)
	if !ok {
		return nil, errors.New("prcp is not a float variable")
	}
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func stringAttr(h *cdf.Header, v, a string) string {
	s, _ := h.GetAttribute(v, a).(string)
	return s
}
