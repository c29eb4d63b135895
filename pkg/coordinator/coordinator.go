// Package coordinator drives the refresh of all feeds. A tick asks the policy
// which feeds are due, fetches them one after another and records the outcome
// in the feed's slot.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jameshartig/enever/pkg/cache"
	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/enever"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/metrics"
	"github.com/jameshartig/enever/pkg/policy"
	"github.com/jameshartig/enever/pkg/quota"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// DefaultFetchTimeout bounds a single fetch when no timeout is configured.
const DefaultFetchTimeout = 30 * time.Second

// Fetcher fetches a single feed.
type Fetcher interface {
	Fetch(ctx context.Context, feed types.FeedType) (types.FeedData, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, feed types.FeedType) (types.FeedData, error)

// Fetch calls f(ctx, feed).
func (f FetcherFunc) Fetch(ctx context.Context, feed types.FeedType) (types.FeedData, error) {
	return f(ctx, feed)
}

// Update is published to subscribers after a tick fetched new data.
type Update struct {
	Time  time.Time
	Feeds []types.FeedType
}

// Coordinator owns the slots of all feeds and the loops refreshing them.
type Coordinator struct {
	clock   *common.Clock
	policy  *policy.Policy
	counter *quota.Counter
	slots   map[types.FeedType]*cache.Slot
	loops   []*Loop

	tickMu sync.Mutex

	subMu       sync.RWMutex
	subscribers []func(Update)
}

// Configured registers the fetch timeout flag and returns a coordinator
// usable after the flags are parsed.
func Configured(fetcher Fetcher, p *policy.Policy, clock *common.Clock, counter *quota.Counter) *Coordinator {
	c := New(fetcher, p, clock, counter, DefaultFetchTimeout)
	timeout := lflag.Duration("fetch-timeout", DefaultFetchTimeout, "Timeout for a single feed request")

	lflag.Do(func() {
		if *timeout <= 0 {
			panic(fmt.Errorf("fetch-timeout must be positive"))
		}
		for _, l := range c.loops {
			l.timeout = *timeout
		}
	})

	return c
}

// New returns a coordinator with an electricity and a gas loop. The counter is
// optional; when set its month rollover is persisted on every tick.
func New(fetcher Fetcher, p *policy.Policy, clock *common.Clock, counter *quota.Counter, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	c := &Coordinator{
		clock:   clock,
		policy:  p,
		counter: counter,
		slots:   make(map[types.FeedType]*cache.Slot, len(types.Feeds)),
	}
	for _, f := range types.Feeds {
		c.slots[f.Type] = cache.NewSlot(f.Type)
	}
	for _, commodity := range []types.Commodity{types.CommodityElectricity, types.CommodityGas} {
		c.loops = append(c.loops, &Loop{
			commodity: commodity,
			feeds:     types.FeedsFor(commodity),
			slots:     c.slots,
			fetcher:   fetcher,
			policy:    p,
			timeout:   timeout,
		})
	}
	return c
}

// Slot returns the slot of feed.
func (c *Coordinator) Slot(feed types.FeedType) *cache.Slot {
	s, ok := c.slots[feed]
	if !ok {
		panic(fmt.Sprintf("unknown feed %q", feed))
	}
	return s
}

// Loops returns the loops in the order they are ticked.
func (c *Coordinator) Loops() []*Loop {
	return c.loops
}

// Subscribe registers fn to be called after every tick that fetched new data.
// fn is called synchronously and must not block.
func (c *Coordinator) Subscribe(fn func(Update)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Tick runs every loop once. Concurrent calls are serialized.
func (c *Coordinator) Tick(ctx context.Context) Update {
	c.tickMu.Lock()
	now := c.clock.Now()
	ctx = log.WithAttrs(ctx, slog.String("tickID", uuid.NewString()))
	log.Ctx(ctx).DebugContext(ctx, "tick started", slog.Time("now", now))

	if c.counter != nil {
		if reset, err := c.counter.Rollover(ctx, now); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to roll over request counter", slog.Any("error", err))
		} else if reset {
			log.Ctx(ctx).InfoContext(ctx, "request counter reset for new month")
		}
	}

	u := Update{Time: now}
	for _, l := range c.loops {
		u.Feeds = append(u.Feeds, l.Tick(ctx, now)...)
	}
	c.tickMu.Unlock()

	if len(u.Feeds) == 0 {
		return u
	}

	c.subMu.RLock()
	subscribers := make([]func(Update), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(u)
	}
	return u
}

// State is the phase a loop is in.
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateFetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// Loop refreshes the feeds of one commodity.
type Loop struct {
	commodity types.Commodity
	feeds     []types.FeedType
	slots     map[types.FeedType]*cache.Slot
	fetcher   Fetcher
	policy    *policy.Policy
	timeout   time.Duration

	state atomic.Int32
}

// Commodity returns the commodity the loop refreshes.
func (l *Loop) Commodity() types.Commodity {
	return l.commodity
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// covered returns the newest day cached for feed. Yesterday's tomorrow data
// covers today for the today feed.
func (l *Loop) covered(feed types.FeedType, snap cache.Snapshot) time.Time {
	covered := snap.Covered()
	if feed == types.FeedElectricityToday {
		if tomorrow, ok := l.slots[types.FeedElectricityTomorrow]; ok {
			if c := tomorrow.Read().Covered(); c.After(covered) {
				covered = c
			}
		}
	}
	return covered
}

// Tick fetches every due feed of the loop in order and returns the feeds that
// were updated with new data.
func (l *Loop) Tick(ctx context.Context, now time.Time) []types.FeedType {
	l.setState(StateChecking)
	defer l.setState(StateIdle)

	var updated []types.FeedType
	for _, feed := range l.feeds {
		fctx := log.WithAttrs(ctx, slog.String("feed", string(feed)))
		slot := l.slots[feed]
		snap := slot.Read()

		if snap.Suppressed(now) {
			log.Ctx(fctx).DebugContext(fctx, "feed suppressed", slog.Time("until", snap.SuppressedUntil))
			continue
		}
		state := policy.SlotState{
			LastSuccessAt:       snap.LastSuccessAt,
			LastAttemptAt:       snap.LastAttemptAt,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			Covered:             l.covered(feed, snap),
		}
		if !l.policy.IsDue(feed, now, state) {
			log.Ctx(fctx).DebugContext(fctx, "feed not due")
			continue
		}

		l.setState(StateFetching)
		data, err := l.fetch(fctx, feed, now)
		slot.Update(data, err, now)
		l.setState(StateChecking)

		snap = slot.Read()
		metrics.RecordSlot(string(feed), snap.ConsecutiveFailures, snap.LastSuccessAt)
		if err != nil {
			log.Ctx(fctx).WarnContext(
				fctx,
				"failed to fetch feed",
				slog.Any("error", err),
				slog.Int("consecutiveFailures", snap.ConsecutiveFailures),
				slog.Duration("retryIn", l.policy.NextBackoff(feed, snap.ConsecutiveFailures)),
			)
			continue
		}
		log.Ctx(fctx).InfoContext(
			fctx,
			"fetched feed",
			slog.String("date", data.Date.Format(time.DateOnly)),
			slog.Int("providers", len(data.Series)),
		)
		updated = append(updated, feed)
	}
	return updated
}

// fetch calls the fetcher with its own deadline so shutdown doesn't abort a
// request that was already counted. The returned error is always a
// *enever.FetchError.
func (l *Loop) fetch(ctx context.Context, feed types.FeedType, now time.Time) (data types.FeedData, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "panic fetching feed", slog.Any("panic", r))
			data = types.FeedData{}
			err = enever.Classify(feed, fmt.Errorf("panic: %v", r))
		}
		outcome := "success"
		if fe := enever.Classify(feed, err); fe != nil {
			outcome = fe.Outcome()
		}
		metrics.RecordFetch(string(feed), outcome, time.Since(start))
	}()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	data, err = l.fetcher.Fetch(fctx, feed)
	if err != nil {
		return types.FeedData{}, enever.Classify(feed, err)
	}
	if expected := l.policy.ExpectedDay(feed, now); data.Date.Before(expected) {
		return types.FeedData{}, &enever.FetchError{
			Feed: feed,
			Kind: enever.ErrNotYetPublished,
			Err:  fmt.Errorf("got prices for %s, expected %s", data.Date.Format(time.DateOnly), expected.Format(time.DateOnly)),
		}
	}
	return data, nil
}
