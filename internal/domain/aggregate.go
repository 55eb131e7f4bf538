package domain

import (
	"fmt"
	"math"
	"time"
)

// Statistic selects how daily values are combined into a monthly value.
type Statistic string

const (
	StatMean Statistic = "mean"
	StatSum  Statistic = "sum"
)

// ParseStatistic validates a statistic name.
func ParseStatistic(s string) (Statistic, error) {
	switch Statistic(s) {
	case StatMean, StatSum:
		return Statistic(s), nil
	}
	return "", fmt.Errorf("invalid statistic %q: must be %q or %q", s, StatMean, StatSum)
}

// DefaultMinCoverage is the fraction of a month's days required for a monthly value.
const DefaultMinCoverage = 0.75

// Aggregator combines the daily grids of one month into a single grid.
type Aggregator struct {
	Statistic   Statistic
	MinCoverage float64
}

// RequiredDays is the minimum number of daily grids needed for the month
// containing t. At least one day is always required.
func (a Aggregator) RequiredDays(t time.Time) int {
	n := int(math.Ceil(a.MinCoverage*float64(DaysInMonth(t)) - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// Aggregate reduces the daily grids of month into one grid stamped with the
// first day of the month. Per cell, missing (NaN) days are skipped; a cell
// with no valid day stays NaN.
func (a Aggregator) Aggregate(month time.Time, days []Grid) (Grid, error) {
	if need := a.RequiredDays(month); len(days) < need {
		return Grid{}, fmt.Errorf("%w: %s has %d of %d days, need at least %d",
			ErrInsufficientData, month.Format("2006-01"), len(days), DaysInMonth(month), need)
	}

	out, err := reduce(days, a.Statistic)
	if err != nil {
		return Grid{}, err
	}
	out.Time = FirstOfMonth(month)
	return out, nil
}

// Mean returns the per-cell arithmetic mean of the grids, stamped with the
// time of the first grid.
func Mean(grids []Grid) (Grid, error) {
	return reduce(grids, StatMean)
}

func reduce(grids []Grid, stat Statistic) (Grid, error) {
	if len(grids) == 0 {
		return Grid{}, fmt.Errorf("%w: no grids to aggregate", ErrInsufficientData)
	}
	first := grids[0]
	if err := first.Validate(); err != nil {
		return Grid{}, err
	}

	sums := make([]float64, len(first.Values))
	counts := make([]int, len(first.Values))
	for _, g := range grids {
		if !g.SameCoordinates(first) || len(g.Values) != len(first.Values) {
			return Grid{}, fmt.Errorf("%w: grid for %s does not match the coordinates of %s",
				ErrFormat, g.Time.Format(time.DateOnly), first.Time.Format(time.DateOnly))
		}
		for i, v := range g.Values {
			if math.IsNaN(float64(v)) {
				continue
			}
			sums[i] += float64(v)
			counts[i]++
		}
	}

	out := Grid{
		Time:    first.Time,
		ObsType: first.ObsType,
		Lats:    first.Lats,
		Lons:    first.Lons,
		Values:  make([]float32, len(sums)),
	}
	for i := range sums {
		switch {
		case counts[i] == 0:
			out.Values[i] = float32(math.NaN())
		case stat == StatSum:
			out.Values[i] = float32(sums[i])
		default:
			out.Values[i] = float32(sums[i] / float64(counts[i]))
		}
	}
	return out, nil
}
