package domain

import "fmt"

// BoundingBox is an inclusive lat/lon window. Longitudes are degrees east in [0, 360).
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// CONUS covers the contiguous United States (128W to 65W, 23N to 50N).
var CONUS = BoundingBox{MinLat: 23, MaxLat: 50, MinLon: 232, MaxLon: 295}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Subset crops a grid to the cells whose coordinates fall inside the box.
// Applying the same box to an already cropped grid returns it unchanged.
func Subset(g Grid, box BoundingBox) (Grid, error) {
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}

	rows := axisIndices(g.Lats, box.MinLat, box.MaxLat)
	cols := axisIndices(g.Lons, box.MinLon, box.MaxLon)
	if len(rows) == 0 || len(cols) == 0 {
		return Grid{}, fmt.Errorf("%w: bounding box %+v contains no grid points", ErrFormat, box)
	}

	out := Grid{
		Time:    g.Time,
		ObsType: g.ObsType,
		Lats:    make([]float32, len(rows)),
		Lons:    make([]float32, len(cols)),
		Values:  make([]float32, 0, len(rows)*len(cols)),
	}
	for k, i := range rows {
		out.Lats[k] = g.Lats[i]
	}
	for k, j := range cols {
		out.Lons[k] = g.Lons[j]
	}
	for _, i := range rows {
		row := g.Values[i*len(g.Lons) : (i+1)*len(g.Lons)]
		for _, j := range cols {
			out.Values = append(out.Values, row[j])
		}
	}
	return out, nil
}

func axisIndices(axis []float32, lo, hi float64) []int {
	var idx []int
	for i, v := range axis {
		if f := float64(v); f >= lo && f <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}
