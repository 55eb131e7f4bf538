package domain

import (
	"fmt"
	"math"
	"time"
)

// ObsType identifies the CMORPH product variant.
type ObsType string

const (
	// ObsAdjusted is the bias-corrected (CRT) product.
	ObsAdjusted ObsType = "adjusted"
	// ObsRaw is the satellite-only product.
	ObsRaw ObsType = "raw"
)

// ParseObsType validates an observation type name.
func ParseObsType(s string) (ObsType, error) {
	switch ObsType(s) {
	case ObsAdjusted, ObsRaw:
		return ObsType(s), nil
	}
	return "", fmt.Errorf("invalid observation type %q: must be %q or %q", s, ObsAdjusted, ObsRaw)
}

// Grid is a single precipitation time-step on a regular lat/lon grid.
// Values are stored row-major by latitude; missing cells are NaN.
type Grid struct {
	Time    time.Time
	ObsType ObsType
	Lats    []float32
	Lons    []float32
	Values  []float32
}

// NLat returns the number of latitude rows.
func (g Grid) NLat() int { return len(g.Lats) }

// NLon returns the number of longitude columns.
func (g Grid) NLon() int { return len(g.Lons) }

// At returns the value at latitude row i, longitude column j.
func (g Grid) At(i, j int) float32 { return g.Values[i*len(g.Lons)+j] }

// Validate checks that the value array matches the coordinate lengths.
func (g Grid) Validate() error {
	if len(g.Lats) == 0 || len(g.Lons) == 0 {
		return fmt.Errorf("%w: grid has empty coordinates", ErrFormat)
	}
	if want := len(g.Lats) * len(g.Lons); len(g.Values) != want {
		return fmt.Errorf("%w: grid has %d values, want %d (%d lat x %d lon)",
			ErrFormat, len(g.Values), want, len(g.Lats), len(g.Lons))
	}
	return nil
}

// SameCoordinates reports whether two grids share identical lat/lon axes.
func (g Grid) SameCoordinates(o Grid) bool {
	return equalAxis(g.Lats, o.Lats) && equalAxis(g.Lons, o.Lons)
}

// ValidCells counts cells holding a value.
func (g Grid) ValidCells() int {
	n := 0
	for _, v := range g.Values {
		if !math.IsNaN(float64(v)) {
			n++
		}
	}
	return n
}

func equalAxis(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
