package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = float32(math.NaN())

func cell(day int, v float32) Grid {
	return Grid{
		Time:    time.Date(2020, time.February, day, 0, 0, 0, 0, time.UTC),
		ObsType: ObsRaw,
		Lats:    []float32{30},
		Lons:    []float32{260},
		Values:  []float32{v},
	}
}

func TestMean_SingleCell(t *testing.T) {
	g, err := Mean([]Grid{cell(1, 1), cell(2, 2), cell(3, 3)})
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, g.Values)
}

func TestAggregate_ConstantGridsGiveConstant(t *testing.T) {
	var days []Grid
	for d := 1; d <= 29; d++ {
		days = append(days, Grid{
			Time:   time.Date(2020, time.February, d, 0, 0, 0, 0, time.UTC),
			Lats:   []float32{30, 31},
			Lons:   []float32{260, 261, 262},
			Values: []float32{4.5, 4.5, 4.5, 4.5, 4.5, 4.5},
		})
	}
	agg := Aggregator{Statistic: StatMean, MinCoverage: DefaultMinCoverage}

	g, err := agg.Aggregate(days[0].Time, days)
	require.NoError(t, err)
	for _, v := range g.Values {
		assert.InDelta(t, 4.5, v, 1e-6)
	}
	assert.Equal(t, time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC), g.Time)
}

func TestAggregate_SkipsMissingCells(t *testing.T) {
	agg := Aggregator{Statistic: StatMean}

	g, err := agg.Aggregate(cell(1, 0).Time, []Grid{cell(1, 2), cell(2, nan), cell(3, 4)})
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, g.Values)

	g, err = agg.Aggregate(cell(1, 0).Time, []Grid{cell(1, nan), cell(2, nan)})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(g.Values[0])))
}

func TestAggregate_Sum(t *testing.T) {
	agg := Aggregator{Statistic: StatSum}
	g, err := agg.Aggregate(cell(1, 0).Time, []Grid{cell(1, 1), cell(2, 2), cell(3, 3)})
	require.NoError(t, err)
	assert.Equal(t, []float32{6}, g.Values)
}

func TestAggregate_InsufficientData(t *testing.T) {
	agg := Aggregator{Statistic: StatMean, MinCoverage: DefaultMinCoverage}

	_, err := agg.Aggregate(cell(1, 0).Time, []Grid{cell(1, 1), cell(2, 2)})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Mean(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAggregate_MismatchedCoordinates(t *testing.T) {
	other := cell(2, 1)
	other.Lons = []float32{261}
	_, err := Aggregator{}.Aggregate(cell(1, 0).Time, []Grid{cell(1, 1), other})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestAggregator_RequiredDays(t *testing.T) {
	tests := []struct {
		coverage float64
		month    time.Time
		want     int
	}{
		{0.75, time.Date(2021, time.February, 1, 0, 0, 0, 0, time.UTC), 21},
		{0.75, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), 24},
		{0.75, time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC), 23},
		{1, time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC), 29},
		{0, time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC), 1},
	}
	for _, tt := range tests {
		got := Aggregator{MinCoverage: tt.coverage}.RequiredDays(tt.month)
		assert.Equal(t, tt.want, got, "coverage %v month %s", tt.coverage, tt.month.Format("2006-01"))
	}
}

func TestParseStatistic(t *testing.T) {
	s, err := ParseStatistic("sum")
	require.NoError(t, err)
	assert.Equal(t, StatSum, s)

	_, err = ParseStatistic("median")
	assert.Error(t, err)
}
