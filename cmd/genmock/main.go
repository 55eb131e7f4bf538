// Command genmock writes synthetic CMORPH V1.0 daily files and a matching
// GrADS descriptor, laid out exactly as the CPC archive publishes them. The
// output directory can be passed straight to the ingest commands.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/mock/cmorph \
//	  -start 2024-04-01 -end 2024-04-30 \
//	  -obs-type raw -gzip
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/adapter/cmorph"
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// conusPatch is a small grid over the southern plains, enough to exercise
// subsetting without writing multi-megabyte global files.
var conusPatch = struct{ x, y domain.Axis }{
	x: domain.Axis{Count: 40, Start: 255.125, Step: 0.25},
	y: domain.Axis{Count: 24, Start: 30.125, Step: 0.25},
}

type options struct {
	outDir     string
	start, end time.Time
	obs        domain.ObsType
	full       bool
	compress   bool
	missing    float64
	seed       uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory to write daily files and the descriptor into")
	start := flag.String("start", "", "first day, YYYY-MM-DD")
	end := flag.String("end", "", "last day, YYYY-MM-DD")
	obsType := flag.String("obs-type", string(domain.ObsRaw), "observation type: adjusted or raw")
	full := flag.Bool("full", false, "write the full 1440x480 global grid instead of a small patch")
	compress := flag.Bool("gzip", false, "gzip each daily file as the archive does")
	missing := flag.Float64("missing", 0.02, "fraction of cells written as undefined")
	seed := flag.Uint64("seed", 1, "random seed for reproducible output")
	flag.Parse()

	if *outDir == "" || *start == "" || *end == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out-dir, -start, -end")
	}

	o := options{outDir: *outDir, full: *full, compress: *compress, missing: *missing, seed: *seed}
	var err error
	if o.start, err = domain.ParseDate(*start); err != nil {
		return err
	}
	if o.end, err = domain.ParseDate(*end); err != nil {
		return err
	}
	if o.obs, err = domain.ParseObsType(*obsType); err != nil {
		return err
	}
	return generate(o)
}

func generate(o options) error {
	r, err := domain.NewDateRange(o.start, o.end)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return err
	}

	desc := domain.DefaultDescriptor()
	desc.Start = r.Start
	if !o.full {
		desc.X, desc.Y = conusPatch.x, conusPatch.y
	}
	ctl := filepath.Join(o.outDir, domain.DescriptorFileName)
	if err := os.WriteFile(ctl, []byte(desc.Format()), 0o600); err != nil {
		return fmt.Errorf("writing descriptor: %w", err)
	}
	log.Printf("wrote descriptor: %s (%d x %d)", ctl, desc.Y.Count, desc.X.Count)

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	var st stats
	for _, day := range r.Days() {
		values := synthesize(rng, desc, day, o.missing)
		st.add(values)

		data, err := cmorph.Encode(desc, values)
		if err != nil {
			return err
		}
		path := filepath.Join(o.outDir, domain.DailyFileName(o.obs, day))
		if o.compress {
			path += ".gz"
			if data, err = gzipBytes(data); err != nil {
				return fmt.Errorf("compressing %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	log.Printf("wrote %d daily files to %s", len(r.Days()), o.outDir)

	st.print()
	return nil
}

// synthesize produces a storm band drifting east over the grid, with a light
// drizzle elsewhere and a fraction of undefined cells.
func synthesize(rng *rand.Rand, desc domain.Descriptor, day time.Time, missing float64) []float32 {
	lats := desc.Y.Values()
	lons := desc.X.Values()
	values := make([]float32, 0, len(lats)*len(lons))

	phase := float64(day.YearDay()) / 365 * 2 * math.Pi
	centerLon := desc.X.Start + (0.5+0.4*math.Sin(phase))*float64(desc.X.Count)*desc.X.Step
	centerLat := desc.Y.Start + 0.5*float64(desc.Y.Count)*desc.Y.Step

	for _, lat := range lats {
		for _, lon := range lons {
			if rng.Float64() < missing {
				values = append(values, float32(math.NaN()))
				continue
			}
			d := math.Hypot(float64(lat)-centerLat, float64(lon)-centerLon)
			v := 40 * math.Exp(-d*d/8)
			if rng.Float64() < 0.3 {
				v += rng.ExpFloat64() * 2
			}
			if v < 0.1 {
				v = 0
			}
			values = append(values, float32(math.Round(v*10)/10))
		}
	}
	return values
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stats holds aggregate values for printStats-style reporting.
type stats struct {
	cells, undefined, wet int
	max                   float32
	total                 float64
}

func (s *stats) add(values []float32) {
	for _, v := range values {
		s.cells++
		switch {
		case math.IsNaN(float64(v)):
			s.undefined++
			continue
		case v > 0:
			s.wet++
		}
		s.total += float64(v)
		s.max = max(s.max, v)
	}
}

func (s *stats) print() {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Cells: %d\n", s.cells)
	fmt.Printf("Undefined: %d\n", s.undefined)
	fmt.Printf("Wet (> 0 mm): %d\n", s.wet)
	fmt.Printf("Max daily precipitation: %.1f mm\n", s.max)
	if valid := s.cells - s.undefined; valid > 0 {
		fmt.Printf("Mean daily precipitation: %.3f mm\n", s.total/float64(valid))
	}
}
