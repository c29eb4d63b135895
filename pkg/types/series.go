package types

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptySeries    = errors.New("series has no samples")
	ErrSampleOrder    = errors.New("samples are not strictly increasing")
	ErrSampleOutOfDay = errors.New("sample is outside of the series day")
)

// Sample is a single price starting at Time.
type Sample struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// TimeSeries is an immutable, ordered set of samples covering one calendar
// day. Use NewTimeSeries to construct one.
type TimeSeries struct {
	date    time.Time
	samples []Sample
}

// Day returns local midnight of the day t falls on, in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay returns true if a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// NewTimeSeries builds a series for the day of the first sample in loc. The
// samples are sorted first but duplicates and samples on other days are
// rejected.
func NewTimeSeries(loc *time.Location, samples []Sample) (TimeSeries, error) {
	if len(samples) == 0 {
		return TimeSeries{}, ErrEmptySeries
	}
	sorted := make([]Sample, len(samples))
	for i, s := range samples {
		sorted[i] = Sample{Time: s.Time.In(loc), Price: s.Price}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	date := Day(sorted[0].Time)
	for i, s := range sorted {
		if !SameDay(date, s.Time) {
			return TimeSeries{}, fmt.Errorf("%w: %s not on %s", ErrSampleOutOfDay, s.Time.Format(time.RFC3339), date.Format(time.DateOnly))
		}
		if i > 0 && !s.Time.After(sorted[i-1].Time) {
			return TimeSeries{}, fmt.Errorf("%w: duplicate %s", ErrSampleOrder, s.Time.Format(time.RFC3339))
		}
	}
	return TimeSeries{date: date, samples: sorted}, nil
}

// Date returns local midnight of the day the series covers.
func (ts TimeSeries) Date() time.Time {
	return ts.date
}

// Len returns the number of samples.
func (ts TimeSeries) Len() int {
	return len(ts.samples)
}

// IsZero returns true for the zero series, which has no samples.
func (ts TimeSeries) IsZero() bool {
	return len(ts.samples) == 0
}

// Samples returns a copy of the samples.
func (ts TimeSeries) Samples() []Sample {
	out := make([]Sample, len(ts.samples))
	copy(out, ts.samples)
	return out
}

// At returns the sample whose interval contains t. A sample's interval ends
// at the next sample or, for the last one, at the end of the day.
func (ts TimeSeries) At(t time.Time) (Sample, bool) {
	if ts.IsZero() || !SameDay(ts.date, t) {
		return Sample{}, false
	}
	i := sort.Search(len(ts.samples), func(i int) bool {
		return ts.samples[i].Time.After(t)
	})
	if i == 0 {
		return Sample{}, false
	}
	return ts.samples[i-1], true
}

// Average returns the arithmetic mean of all sample prices. It returns false
// for an empty series.
func (ts TimeSeries) Average() (decimal.Decimal, bool) {
	if ts.IsZero() {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, s := range ts.samples {
		sum = sum.Add(s.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(ts.samples)))), true
}

// FeedData is the parsed content of one response of a feed endpoint. Every
// response carries the prices of all providers.
type FeedData struct {
	Feed FeedType
	// Date is local midnight of the day the prices are for.
	Date   time.Time
	Series map[string]TimeSeries
}

// Provider returns the series of a single provider.
func (d *FeedData) Provider(code string) (TimeSeries, bool) {
	if d == nil {
		return TimeSeries{}, false
	}
	ts, ok := d.Series[code]
	return ts, ok && !ts.IsZero()
}
