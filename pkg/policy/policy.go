// Package policy decides when each feed has to be fetched. It is pure: all
// decisions are made from the current time and the state of the feed's slot.
package policy

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultElectricityRetry is how long to wait after a failed electricity
	// fetch.
	DefaultElectricityRetry = 60 * time.Minute
	// DefaultGasRetry is how long to wait after a failed gas fetch.
	DefaultGasRetry = 15 * time.Minute

	// maxClockSkew is how far the clock may move backwards before the slot
	// state is considered unreliable.
	maxClockSkew = time.Hour
)

// publishSchedules are the times at which upstream publishes new data for each
// feed, in the configured location.
var publishSchedules = map[types.FeedType]string{
	types.FeedElectricityToday:    "0 0 * * *",
	types.FeedElectricityTomorrow: "0 15 * * *",
	types.FeedGasToday:            "0 6 * * *",
}

// SlotState is the part of a slot the policy decides on.
type SlotState struct {
	LastSuccessAt       time.Time
	LastAttemptAt       time.Time
	ConsecutiveFailures int
	// Covered is local midnight of the newest day the cached data of the feed
	// covers. Zero if there is no data.
	Covered time.Time
}

// Policy implements the refresh rules of every feed.
type Policy struct {
	loc       *time.Location
	schedules map[types.FeedType]cron.Schedule
	retry     map[types.Commodity]time.Duration
}

// Configured registers the retry interval flags and returns a policy usable
// after the flags are parsed.
func Configured(clock *common.Clock) *Policy {
	p := &Policy{
		schedules: mustParseSchedules(),
	}
	electricity := lflag.Duration("electricity-retry-interval", DefaultElectricityRetry, "How long to wait before retrying a failed electricity fetch")
	gas := lflag.Duration("gas-retry-interval", DefaultGasRetry, "How long to wait before retrying a failed gas fetch")

	lflag.Do(func() {
		if *electricity <= 0 || *gas <= 0 {
			panic(fmt.Errorf("retry intervals must be positive"))
		}
		p.loc = clock.Location()
		p.retry = map[types.Commodity]time.Duration{
			types.CommodityElectricity: *electricity,
			types.CommodityGas:         *gas,
		}
	})

	return p
}

// New returns a policy evaluating schedules in loc.
func New(loc *time.Location, electricityRetry, gasRetry time.Duration) *Policy {
	return &Policy{
		loc:       loc,
		schedules: mustParseSchedules(),
		retry: map[types.Commodity]time.Duration{
			types.CommodityElectricity: electricityRetry,
			types.CommodityGas:         gasRetry,
		},
	}
}

func mustParseSchedules() map[types.FeedType]cron.Schedule {
	schedules := make(map[types.FeedType]cron.Schedule, len(publishSchedules))
	for feed, spec := range publishSchedules {
		s, err := cron.ParseStandard(spec)
		if err != nil {
			panic(fmt.Errorf("invalid publish schedule for %s: %w", feed, err))
		}
		schedules[feed] = s
	}
	return schedules
}

// NextBackoff returns how long to wait after the given number of consecutive
// failures before the feed is due again.
func (p *Policy) NextBackoff(feed types.FeedType, failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	b := backoff.NewConstantBackOff(p.retry[feed.Info().Commodity])
	var d time.Duration
	for i := 0; i < failures; i++ {
		d = b.NextBackOff()
	}
	return d
}

// PreviousBoundary returns the most recent publish time of feed at or before
// now.
func (p *Policy) PreviousBoundary(feed types.FeedType, now time.Time) time.Time {
	s, ok := p.schedules[feed]
	if !ok {
		panic(fmt.Sprintf("no publish schedule for feed %q", feed))
	}
	now = now.In(p.loc)
	// every schedule fires at least daily
	prev := time.Time{}
	for next := s.Next(now.Add(-48 * time.Hour)); !next.After(now); next = s.Next(next) {
		prev = next
	}
	return prev
}

// ExpectedDay returns local midnight of the day an up to date feed has data
// for at now.
func (p *Policy) ExpectedDay(feed types.FeedType, now time.Time) time.Time {
	return types.Day(p.PreviousBoundary(feed, now)).AddDate(0, 0, feed.Info().DayOffset)
}

// IsDue returns true if feed should be fetched at now.
func (p *Policy) IsDue(feed types.FeedType, now time.Time, state SlotState) bool {
	// cold start
	if state.LastSuccessAt.IsZero() && state.LastAttemptAt.IsZero() {
		return true
	}
	// the clock moved backwards, the bookkeeping can't be trusted
	if now.Before(state.LastSuccessAt.Add(-maxClockSkew)) || now.Before(state.LastAttemptAt.Add(-maxClockSkew)) {
		return true
	}
	if state.ConsecutiveFailures > 0 {
		return !now.Before(state.LastAttemptAt.Add(p.NextBackoff(feed, state.ConsecutiveFailures)))
	}
	if state.LastSuccessAt.IsZero() {
		return true
	}
	if !state.LastSuccessAt.Before(p.PreviousBoundary(feed, now)) {
		return false
	}
	return state.Covered.IsZero() || state.Covered.Before(p.ExpectedDay(feed, now))
}
