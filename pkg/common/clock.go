package common

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Clock returns the current time in the location feed days are defined in.
// All calendar day and month boundaries are evaluated in that location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// ConfiguredClock registers the timezone flag and returns a clock that is
// usable once the flags have been parsed.
func ConfiguredClock() *Clock {
	tz := lflag.String("timezone", "Europe/Amsterdam", "Timezone the feed days and months are defined in")

	c := &Clock{now: time.Now}

	lflag.Do(func() {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Errorf("failed to load timezone %s: %w", *tz, err))
		}
		c.loc = loc
	})

	return c
}

// NewClock returns a clock in loc. If now is nil the wall clock is used.
func NewClock(loc *time.Location, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: loc, now: now}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the clock's location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
