package domain

import (
	"fmt"
	"time"
)

// TimeEpoch is the reference date of the output time coordinate.
var TimeEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeUnits is the CF units string matching TimeEpoch.
const TimeUnits = "days since 1900-01-01"

// DateLayout is the command line date format.
const DateLayout = "2006-01-02"

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to UTC days and rejects inverted ranges.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.Start.After(r.End) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s",
			r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// Days lists every day in the range.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Months lists the first day of every month touched by the range.
func (r DateRange) Months() []time.Time {
	var months []time.Time
	for m := FirstOfMonth(r.Start); !m.After(r.End); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// ParseDate parses a YYYY-MM-DD command line date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns midnight UTC on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of calendar days in t's month.
func DaysInMonth(t time.Time) int {
	return FirstOfMonth(t).AddDate(0, 1, -1).Day()
}

// MonthDays lists every day of t's month.
func MonthDays(t time.Time) []time.Time {
	first := FirstOfMonth(t)
	return DateRange{Start: first, End: first.AddDate(0, 1, -1)}.Days()
}

// LastDayOfPreviousMonth is the default end of an ingest run: the most recent
// month for which the archive is complete.
func LastDayOfPreviousMonth(now time.Time) time.Time {
	return FirstOfMonth(now).AddDate(0, 0, -1)
}

// DaysSinceEpoch converts a day to the output time coordinate.
func DaysSinceEpoch(t time.Time) int32 {
	return int32(Day(t).Sub(TimeEpoch).Hours() / 24)
}

// FromDaysSinceEpoch converts an output time coordinate back to a date.
func FromDaysSinceEpoch(days int32) time.Time {
	return TimeEpoch.AddDate(0, 0, int(days))
}

// DailyFileName is the archive name of one day of CMORPH data, without any
// compression suffix.
func DailyFileName(obs ObsType, day time.Time) string {
	kind := "RAW"
	if obs == ObsAdjusted {
		kind = "ADJ"
	}
	return fmt.Sprintf("CMORPH_V1.0_%s_0.25deg-DLY_00Z_%s", kind, day.Format("20060102"))
}

// ArchiveDir is the CPC directory holding the product's daily files.
func (o ObsType) ArchiveDir() string {
	if o == ObsAdjusted {
		return "CRT"
	}
	return "RAW"
}

// ArchiveExt is the compression suffix the CPC archive uses for a day's
// file. Raw files were gzipped through 2003 and bzip2ed afterwards.
func (o ObsType) ArchiveExt(day time.Time) string {
	if o == ObsRaw && day.Year() < 2004 {
		return ".gz"
	}
	return ".bz2"
}
