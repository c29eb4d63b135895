// Package cache holds the last fetched data of every feed and decides what
// may still be served from it.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jameshartig/enever/pkg/enever"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/types"
)

// GasGracePeriod is how long past the end of its day a gas price is still
// served.
const GasGracePeriod = 2 * time.Hour

// Slot is the cached state of a single feed. It is written by one coordinator
// loop and read concurrently by everyone else.
type Slot struct {
	feed types.FeedType

	mu                  sync.RWMutex
	current             *types.FeedData
	previous            *types.FeedData
	lastSuccessAt       time.Time
	lastAttemptAt       time.Time
	consecutiveFailures int
	lastError           error
	suppressedUntil     time.Time
}

// NewSlot returns an empty slot for feed.
func NewSlot(feed types.FeedType) *Slot {
	return &Slot{feed: feed}
}

// Feed returns the feed the slot caches.
func (s *Slot) Feed() types.FeedType {
	return s.feed
}

// Update records the outcome of a fetch attempt made at now. On success data
// replaces the current data and the failure bookkeeping is reset. On failure
// the data is left untouched. An exhausted quota suppresses the feed until the
// next month.
func (s *Slot) Update(data types.FeedData, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAttemptAt = now
	if err != nil {
		s.consecutiveFailures++
		s.lastError = err
		if errors.Is(err, enever.ErrQuotaExceeded) {
			s.suppressedUntil = types.StartOfNextMonth(now)
		}
		return
	}

	s.previous = s.current
	s.current = &data
	s.lastSuccessAt = now
	s.consecutiveFailures = 0
	s.lastError = nil
	s.suppressedUntil = time.Time{}
}

// Read returns a copy of the slot state.
func (s *Slot) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Feed:                s.feed,
		Current:             s.current,
		Previous:            s.previous,
		LastSuccessAt:       s.lastSuccessAt,
		LastAttemptAt:       s.lastAttemptAt,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
		SuppressedUntil:     s.suppressedUntil,
	}
}

// Snapshot is the state of a slot at one point in time. The FeedData it points
// to is never modified.
type Snapshot struct {
	Feed                types.FeedType
	Current             *types.FeedData
	Previous            *types.FeedData
	LastSuccessAt       time.Time
	LastAttemptAt       time.Time
	ConsecutiveFailures int
	LastError           error
	SuppressedUntil     time.Time
}

// Covered returns local midnight of the day the current data is for, or the
// zero time if nothing was fetched yet.
func (s Snapshot) Covered() time.Time {
	if s.Current == nil {
		return time.Time{}
	}
	return s.Current.Date
}

// Suppressed returns true if fetching is suspended at now.
func (s Snapshot) Suppressed(now time.Time) bool {
	return now.Before(s.SuppressedUntil)
}

// SeriesFor returns the current series of provider if it covers day.
func (s Snapshot) SeriesFor(provider string, day time.Time) (types.TimeSeries, bool) {
	ts, ok := s.Current.Provider(provider)
	if !ok || !types.SameDay(ts.Date(), day) {
		return types.TimeSeries{}, false
	}
	return ts, true
}

// GasPrice is the gas price served for a provider.
type GasPrice struct {
	types.Sample
	// Stale is set when yesterday's price is served within the grace period.
	Stale bool
}

// GasValue returns the gas price of provider at now. The price of the previous
// day is served until GasGracePeriod past midnight. A negative price is an
// upstream error and is replaced by the previously fetched price.
func (s Snapshot) GasValue(ctx context.Context, provider string, now time.Time) (GasPrice, bool) {
	ts, ok := s.Current.Provider(provider)
	if !ok {
		return GasPrice{}, false
	}

	today := types.Day(now.In(ts.Date().Location()))
	var stale bool
	switch {
	case ts.Date().Equal(today):
	case ts.Date().Equal(today.AddDate(0, 0, -1)) && now.Before(today.Add(GasGracePeriod)):
		stale = true
	default:
		return GasPrice{}, false
	}

	sample := lastSample(ts)
	if sample.Price.IsNegative() {
		prev, ok := s.Previous.Provider(provider)
		if !ok || lastSample(prev).Price.IsNegative() {
			log.Ctx(ctx).WarnContext(
				ctx,
				"negative gas price without a previous price",
				slog.String("provider", provider),
				slog.String("price", sample.Price.String()),
			)
			return GasPrice{}, false
		}
		log.Ctx(ctx).WarnContext(
			ctx,
			"negative gas price, using previous price",
			slog.String("provider", provider),
			slog.String("price", sample.Price.String()),
			slog.String("previous", lastSample(prev).Price.String()),
		)
		sample.Price = lastSample(prev).Price
	}
	return GasPrice{Sample: sample, Stale: stale}, true
}

func lastSample(ts types.TimeSeries) types.Sample {
	samples := ts.Samples()
	return samples[len(samples)-1]
}
