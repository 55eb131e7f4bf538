// Command validate checks the integrity of a NetCDF file written by the
// ingest commands: global attributes, coordinate axes, the time axis, and
// the range of precipitation values in every time-step.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -file data/cmorph_daily_conus.nc \
//	  -conus
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/adapter/netcdf"
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// Upper bound for a physically plausible daily total, in mm. The world
// record 24h rainfall is about 1825 mm.
const maxDailyPrcp = 2000

// gridTolerance absorbs float32 rounding in coordinate spacing.
const gridTolerance = 1e-3

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "NetCDF file to validate")
	conus := flag.Bool("conus", false, "require the grid to lie inside the CONUS bounding box")
	sum := flag.Bool("monthly-sum", false, "monthly values are totals rather than means")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*file, *conus, *sum); code != 0 {
		os.Exit(code)
	}
}

func run(path string, conus, monthlySum bool) int {
	fmt.Println("=== CMORPH NetCDF Integrity Validation ===")
	fmt.Println()

	ds, err := netcdf.Read(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	limit := float64(maxDailyPrcp)
	if ds.Aggregation == string(domain.AggregationMonthly) && monthlySum {
		limit *= 31
	}

	phases := []*phase{
		validateAttributes(ds),
		validateCoordinates(ds),
		validateTimeAxis(ds),
		validateValues(ds, limit),
	}
	if conus {
		phases = append(phases, validateBounds(ds, domain.CONUS))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Grid: %d lat x %d lon, %d %s time-steps", len(ds.Lats), len(ds.Lons), len(ds.Times), ds.Aggregation)
	if n := len(ds.Times); n > 0 {
		fmt.Printf(" (%s to %s)", ds.Times[0].Format(domain.DateLayout), ds.Times[n-1].Format(domain.DateLayout))
	}
	fmt.Println()

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateAttributes(ds *netcdf.Dataset) *phase {
	p := &phase{name: "Global and variable attributes"}
	if ds.Title == "" {
		p.errorf("title attribute is empty")
	}
	if _, err := domain.ParseObsType(ds.ObsType); err != nil {
		p.errorf("obs_type: %v", err)
	}
	switch domain.Aggregation(ds.Aggregation) {
	case domain.AggregationDaily, domain.AggregationMonthly:
	default:
		p.errorf("aggregation %q is neither daily nor monthly", ds.Aggregation)
	}
	if ds.TimeUnits != domain.TimeUnits {
		p.errorf("time units %q, want %q", ds.TimeUnits, domain.TimeUnits)
	}
	if ds.PrcpUnits != "mm" {
		p.errorf("prcp units %q, want \"mm\"", ds.PrcpUnits)
	}
	return p
}

func validateCoordinates(ds *netcdf.Dataset) *phase {
	p := &phase{name: "Coordinate axes"}
	checkAxis(p, "lat", ds.Lats, -90, 90)
	checkAxis(p, "lon", ds.Lons, 0, 360)
	return p
}

// checkAxis requires a non-empty, evenly spaced, strictly increasing axis within [lo, hi].
func checkAxis(p *phase, name string, axis []float32, lo, hi float64) {
	if len(axis) == 0 {
		p.errorf("%s axis is empty", name)
		return
	}
	for i, v := range axis {
		if float64(v) < lo || float64(v) > hi {
			p.errorf("%s[%d] = %g outside [%g, %g]", name, i, v, lo, hi)
		}
	}
	if len(axis) < 2 {
		return
	}
	step := float64(axis[1] - axis[0])
	if step <= 0 {
		p.errorf("%s axis is not increasing", name)
		return
	}
	for i := 2; i < len(axis); i++ {
		if d := float64(axis[i] - axis[i-1]); math.Abs(d-step) > gridTolerance {
			p.errorf("%s spacing %g at index %d, want %g", name, d, i, step)
			return
		}
	}
}

func validateTimeAxis(ds *netcdf.Dataset) *phase {
	p := &phase{name: "Time axis"}
	if len(ds.Times) == 0 {
		p.errorf("file has no time-steps")
		return p
	}
	monthly := ds.Aggregation == string(domain.AggregationMonthly)
	for i, t := range ds.Times {
		if !t.Equal(domain.Day(t)) {
			p.errorf("time[%d] = %s is not midnight UTC", i, t.Format(time.RFC3339))
		}
		if monthly && t.Day() != 1 {
			p.errorf("time[%d] = %s is not the first day of a month", i, t.Format(domain.DateLayout))
		}
		if i > 0 && !t.After(ds.Times[i-1]) {
			p.errorf("time[%d] = %s does not follow %s", i,
				t.Format(domain.DateLayout), ds.Times[i-1].Format(domain.DateLayout))
		}
	}
	return p
}

func validateValues(ds *netcdf.Dataset, limit float64) *phase {
	p := &phase{name: "Precipitation values"}
	for i, step := range ds.Values {
		valid := make([]float64, 0, len(step))
		for _, v := range step {
			if !math.IsNaN(float64(v)) {
				valid = append(valid, float64(v))
			}
		}
		label := fmt.Sprintf("step %d", i)
		if i < len(ds.Times) {
			label = ds.Times[i].Format(domain.DateLayout)
		}
		if len(valid) == 0 {
			p.errorf("%s: every cell is missing", label)
			continue
		}
		if lo := floats.Min(valid); lo < 0 {
			p.errorf("%s: negative precipitation %g", label, lo)
		}
		if hi := floats.Max(valid); hi > limit {
			p.errorf("%s: precipitation %g exceeds %g mm", label, hi, limit)
		}
	}
	return p
}

func validateBounds(ds *netcdf.Dataset, box domain.BoundingBox) *phase {
	p := &phase{name: "CONUS bounding box"}
	for _, lat := range ds.Lats {
		if !box.Contains(float64(lat), box.MinLon) {
			p.errorf("lat %g outside [%g, %g]", lat, box.MinLat, box.MaxLat)
		}
	}
	for _, lon := range ds.Lons {
		if !box.Contains(box.MinLat, float64(lon)) {
			p.errorf("lon %g outside [%g, %g]", lon, box.MinLon, box.MaxLon)
		}
	}
	return p
}
