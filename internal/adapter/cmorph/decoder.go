package cmorph

import (
	"compress/bzip2"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// Decoder turns CMORPH binary files into grids using a data descriptor.
// It implements pipeline.Decoder.
type Decoder struct {
	desc domain.Descriptor
	lats []float32
	lons []float32
}

// NewDecoder creates a Decoder for files laid out as desc describes.
func NewDecoder(desc domain.Descriptor) *Decoder {
	return &Decoder{
		desc: desc,
		lats: desc.Y.Values(),
		lons: desc.X.Values(),
	}
}

// Descriptor returns the layout the decoder expects.
func (d *Decoder) Descriptor() domain.Descriptor { return d.desc }

// Decode reads one time-step from path, decompressing .gz and .bz2 files.
func (d *Decoder) Decode(path string, t time.Time) (domain.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	defer f.Close()

	r, err := decompress(f, filepath.Ext(path))
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%w: %s: %v", domain.ErrFormat, path, err)
	}

	// Read one byte past the expected size so oversized files are detected
	// without buffering them entirely.
	want := d.desc.ExpectedBytes()
	data, err := io.ReadAll(io.LimitReader(r, int64(want)+1))
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%w: read %s: %v", domain.ErrFormat, path, err)
	}

	g, err := d.DecodeBytes(data, t)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// DecodeBytes converts raw float32 values to a grid. The data length must be
// exactly XDEF*YDEF*4 bytes.
func (d *Decoder) DecodeBytes(data []byte, t time.Time) (domain.Grid, error) {
	want := d.desc.ExpectedBytes()
	if len(data) != want {
		return domain.Grid{}, fmt.Errorf("%w: got %d bytes, want %d (%d x %d float32)",
			domain.ErrFormat, len(data), want, d.desc.Y.Count, d.desc.X.Count)
	}

	order := d.desc.ByteOrder()
	undef := d.desc.Undef
	nan := float32(math.NaN())

	values := make([]float32, want/4)
	for i := range values {
		v := math.Float32frombits(order.Uint32(data[i*4:]))
		if v == undef || math.IsNaN(float64(v)) {
			v = nan
		}
		values[i] = v
	}

	return domain.Grid{
		Time:   domain.Day(t),
		Lats:   d.lats,
		Lons:   d.lons,
		Values: values,
	}, nil
}

// Encode is the inverse of DecodeBytes: NaN cells are written as the undef sentinel.
func Encode(desc domain.Descriptor, values []float32) ([]byte, error) {
	if len(values)*4 != desc.ExpectedBytes() {
		return nil, fmt.Errorf("%w: got %d values, want %d", domain.ErrFormat, len(values), desc.ExpectedBytes()/4)
	}
	order := desc.ByteOrder()
	out := make([]byte, len(values)*4)
	for i, v := range values {
		if math.IsNaN(float64(v)) {
			v = desc.Undef
		}
		order.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out, nil
}

func decompress(r io.Reader, ext string) (io.Reader, error) {
	switch ext {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case ".bz2":
		return bzip2.NewReader(r), nil
	default:
		return r, nil
	}
}
