package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRange_Days(t *testing.T) {
	r, err := NewDateRange(date(2020, time.February, 27), date(2020, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2020, time.February, 27),
		date(2020, time.February, 28),
		date(2020, time.February, 29),
		date(2020, time.March, 1),
	}, r.Days())
}

func TestDateRange_Months(t *testing.T) {
	r, err := NewDateRange(date(2019, time.November, 15), date(2020, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2019, time.November, 1),
		date(2019, time.December, 1),
		date(2020, time.January, 1),
	}, r.Months())
}

func TestNewDateRange_Inverted(t *testing.T) {
	_, err := NewDateRange(date(2020, time.March, 2), date(2020, time.March, 1))
	assert.Error(t, err)
}

func TestDaysSinceEpoch(t *testing.T) {
	assert.Equal(t, int32(0), DaysSinceEpoch(TimeEpoch))
	assert.Equal(t, int32(35794), DaysSinceEpoch(date(1998, time.January, 1)))

	d := date(2023, time.July, 14)
	assert.Equal(t, d, FromDaysSinceEpoch(DaysSinceEpoch(d)))
}

func TestMonthHelpers(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(date(2020, time.February, 10)))
	assert.Equal(t, 28, DaysInMonth(date(2021, time.February, 10)))
	assert.Len(t, MonthDays(date(2021, time.December, 25)), 31)
	assert.Equal(t, date(2024, time.February, 29), LastDayOfPreviousMonth(date(2024, time.March, 10)))
	assert.Equal(t, date(2023, time.December, 31), LastDayOfPreviousMonth(date(2024, time.January, 1)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2002-12-31")
	require.NoError(t, err)
	assert.Equal(t, date(2002, time.December, 31), d)

	_, err = ParseDate("12/31/2002")
	assert.Error(t, err)
}

func TestDailyFileName(t *testing.T) {
	day := date(2005, time.March, 7)
	assert.Equal(t, "CMORPH_V1.0_RAW_0.25deg-DLY_00Z_20050307", DailyFileName(ObsRaw, day))
	assert.Equal(t, "CMORPH_V1.0_ADJ_0.25deg-DLY_00Z_20050307", DailyFileName(ObsAdjusted, day))
	assert.Equal(t, "CRT", ObsAdjusted.ArchiveDir())
	assert.Equal(t, "RAW", ObsRaw.ArchiveDir())
}

func TestArchiveExt(t *testing.T) {
	tests := []struct {
		obs  ObsType
		day  time.Time
		want string
	}{
		{ObsRaw, date(1998, time.January, 1), ".gz"},
		{ObsRaw, date(2003, time.December, 31), ".gz"},
		{ObsRaw, date(2004, time.January, 1), ".bz2"},
		{ObsRaw, date(2010, time.May, 1), ".bz2"},
		{ObsAdjusted, date(1998, time.January, 1), ".bz2"},
		{ObsAdjusted, date(2019, time.August, 3), ".bz2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.obs.ArchiveExt(tt.day), "%s %s", tt.obs, tt.day.Format(DateLayout))
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("%w: short file", ErrFormat), ExitFormat},
		{fmt.Errorf("wrap: %w", fmt.Errorf("%w: disk", ErrIO)), ExitIO},
		{fmt.Errorf("%w: timeout", ErrNetwork), ExitNetwork},
		{fmt.Errorf("%w: 3 days", ErrInsufficientData), ExitInsufficientData},
		{errors.New("bad flag"), ExitUsage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
