// Package quota keeps track of how many upstream API requests were made in the
// current calendar month. The upstream API enforces a monthly cap, so every
// request that reaches the network must be counted, and the count must
// survive restarts.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/metrics"
	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/types"
)

// persistTimeout bounds a counter write. Writes don't inherit the caller's
// deadline since the request being counted may have used all of it.
const persistTimeout = 10 * time.Second

// Counter is the process-wide monthly request counter. It is safe for
// concurrent use; increments are serialized and persisted before returning.
type Counter struct {
	db    storage.Database
	clock *common.Clock

	mu      sync.Mutex
	counter types.RequestCounter
}

// NewCounter returns a counter persisted in db. Months roll over at midnight
// in the clock's location.
func NewCounter(db storage.Database, clock *common.Clock) *Counter {
	return &Counter{
		db:    db,
		clock: clock,
	}
}

// Load restores the persisted count. It should be called once at startup
// before any requests are made.
func (c *Counter) Load(ctx context.Context) error {
	counter, err := c.db.GetRequestCounter(ctx)
	if err != nil {
		return fmt.Errorf("failed to load request counter: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter = counter
	metrics.SetRequestsThisMonth(c.current(c.clock.Now()).Count)
	log.Ctx(ctx).DebugContext(
		ctx,
		"loaded request counter",
		slog.String("month", counter.Month),
		slog.Int("count", counter.Count),
	)
	return nil
}

// current must be called with mu held.
func (c *Counter) current(now time.Time) types.RequestCounter {
	month := types.MonthKey(now.In(c.clock.Location()))
	if c.counter.Month != month {
		return types.RequestCounter{Month: month}
	}
	return c.counter
}

// Current returns the counter for the month of now. A counter persisted for
// an earlier month reads as zero.
func (c *Counter) Current(now time.Time) types.RequestCounter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current(now)
}

// Increment counts one request made at now and durably stores the new count.
// The in-memory count is advanced even if persisting fails so the quota is
// never under-counted while the process is running. The write is made even if
// ctx is already done.
func (c *Counter) Increment(ctx context.Context, now time.Time) (types.RequestCounter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current(now)
	if next.Count == 0 && c.counter.Month != "" && c.counter.Month != next.Month {
		log.Ctx(ctx).InfoContext(
			ctx,
			"new month, resetting request counter",
			slog.String("previousMonth", c.counter.Month),
			slog.Int("previousCount", c.counter.Count),
		)
	}
	next.Count++
	c.counter = next
	metrics.SetRequestsThisMonth(next.Count)

	if err := c.persist(ctx, next); err != nil {
		return next, fmt.Errorf("failed to persist request counter: %w", err)
	}
	return next, nil
}

// Rollover persists a reset counter if the month of now differs from the
// stored one. It returns true if the counter was reset.
func (c *Counter) Rollover(ctx context.Context, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current(now)
	if next == c.counter {
		return false, nil
	}
	c.counter = next
	metrics.SetRequestsThisMonth(0)
	if err := c.persist(ctx, next); err != nil {
		return true, fmt.Errorf("failed to persist request counter reset: %w", err)
	}
	return true, nil
}

// persist must be called with mu held.
func (c *Counter) persist(ctx context.Context, counter types.RequestCounter) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return c.db.SetRequestCounter(ctx, counter)
}
