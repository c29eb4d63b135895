package policy

import (
	"testing"
	"time"

	"github.com/jameshartig/enever/pkg/types"
	"github.com/stretchr/testify/assert"
)

var amsterdam = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		panic(err)
	}
	return loc
}()

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, amsterdam)
}

func midnight(day int) time.Time {
	return at(day, 0, 0)
}

func TestPreviousBoundary(t *testing.T) {
	p := New(amsterdam, DefaultElectricityRetry, DefaultGasRetry)

	tests := []struct {
		feed types.FeedType
		now  time.Time
		want time.Time
	}{
		{types.FeedElectricityToday, at(12, 7, 0), midnight(12)},
		{types.FeedElectricityToday, midnight(12), midnight(12)},
		{types.FeedElectricityTomorrow, at(12, 14, 59), at(11, 15, 0)},
		{types.FeedElectricityTomorrow, at(12, 15, 0), at(12, 15, 0)},
		{types.FeedGasToday, at(12, 5, 0), at(11, 6, 0)},
		{types.FeedGasToday, at(12, 6, 30), at(12, 6, 0)},
		// evaluated in the configured location
		{types.FeedElectricityToday, time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC), midnight(12)},
	}
	for _, tt := range tests {
		got := p.PreviousBoundary(tt.feed, tt.now)
		assert.True(t, tt.want.Equal(got), "%s at %s: got %s want %s", tt.feed, tt.now, got, tt.want)
	}
}

func TestExpectedDay(t *testing.T) {
	p := New(amsterdam, DefaultElectricityRetry, DefaultGasRetry)

	assert.True(t, midnight(12).Equal(p.ExpectedDay(types.FeedElectricityToday, at(12, 7, 0))))
	assert.True(t, midnight(12).Equal(p.ExpectedDay(types.FeedElectricityTomorrow, at(12, 14, 0))))
	assert.True(t, midnight(13).Equal(p.ExpectedDay(types.FeedElectricityTomorrow, at(12, 15, 30))))
	assert.True(t, midnight(11).Equal(p.ExpectedDay(types.FeedGasToday, at(12, 5, 59))))
	assert.True(t, midnight(12).Equal(p.ExpectedDay(types.FeedGasToday, at(12, 6, 0))))
}

func TestNextBackoff(t *testing.T) {
	p := New(amsterdam, DefaultElectricityRetry, DefaultGasRetry)
	assert.Equal(t, time.Duration(0), p.NextBackoff(types.FeedGasToday, 0))
	assert.Equal(t, 15*time.Minute, p.NextBackoff(types.FeedGasToday, 1))
	assert.Equal(t, 15*time.Minute, p.NextBackoff(types.FeedGasToday, 5))
	assert.Equal(t, 60*time.Minute, p.NextBackoff(types.FeedElectricityToday, 1))
	assert.Equal(t, 60*time.Minute, p.NextBackoff(types.FeedElectricityTomorrow, 3))

	custom := New(amsterdam, 10*time.Minute, 5*time.Minute)
	assert.Equal(t, 10*time.Minute, custom.NextBackoff(types.FeedElectricityToday, 1))
	assert.Equal(t, 5*time.Minute, custom.NextBackoff(types.FeedGasToday, 1))
}

func TestIsDue(t *testing.T) {
	p := New(amsterdam, DefaultElectricityRetry, DefaultGasRetry)

	t.Run("Cold Start", func(t *testing.T) {
		for _, f := range types.Feeds {
			assert.True(t, p.IsDue(f.Type, at(12, 7, 0), SlotState{}), f.Type)
		}
	})

	t.Run("Backoff After Failure", func(t *testing.T) {
		state := SlotState{
			LastAttemptAt:       at(12, 7, 0),
			ConsecutiveFailures: 1,
		}
		assert.False(t, p.IsDue(types.FeedGasToday, at(12, 7, 14), state))
		assert.True(t, p.IsDue(types.FeedGasToday, at(12, 7, 15), state))
		assert.False(t, p.IsDue(types.FeedElectricityToday, at(12, 7, 59), state))
		assert.True(t, p.IsDue(types.FeedElectricityToday, at(12, 8, 0), state))
	})

	t.Run("Backoff Wins Over Boundary", func(t *testing.T) {
		// failed at 14:30, the 15:00 boundary passes during the backoff
		state := SlotState{
			LastSuccessAt:       at(11, 15, 30),
			LastAttemptAt:       at(12, 14, 30),
			ConsecutiveFailures: 1,
			Covered:             midnight(12),
		}
		assert.False(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 15, 0), state))
		assert.False(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 15, 29), state))
		assert.True(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 15, 30), state))
	})

	t.Run("Attempted Without Success", func(t *testing.T) {
		state := SlotState{LastAttemptAt: at(12, 7, 0)}
		assert.True(t, p.IsDue(types.FeedGasToday, at(12, 7, 1), state))
	})

	t.Run("Clock Skew", func(t *testing.T) {
		state := SlotState{
			LastSuccessAt: at(12, 15, 30),
			LastAttemptAt: at(12, 15, 30),
			Covered:       midnight(13),
		}
		assert.False(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 14, 45), state))
		assert.True(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 14, 29), state))
	})

	t.Run("Tomorrow Fetched At 15:30", func(t *testing.T) {
		state := SlotState{
			LastSuccessAt: at(12, 15, 30),
			LastAttemptAt: at(12, 15, 30),
			Covered:       midnight(13),
		}
		for _, now := range []time.Time{at(12, 16, 0), at(12, 23, 59), at(13, 0, 30), at(13, 14, 59)} {
			assert.False(t, p.IsDue(types.FeedElectricityTomorrow, now, state), now)
		}
		assert.True(t, p.IsDue(types.FeedElectricityTomorrow, at(13, 15, 0), state))
	})

	t.Run("Tomorrow Before Publication", func(t *testing.T) {
		// fetched yesterday after publication, today's data is covered
		state := SlotState{
			LastSuccessAt: at(11, 15, 30),
			LastAttemptAt: at(11, 15, 30),
			Covered:       midnight(12),
		}
		assert.False(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 9, 0), state))
		assert.True(t, p.IsDue(types.FeedElectricityTomorrow, at(12, 15, 0), state))
	})

	t.Run("Today Covered By Rolled Over Tomorrow", func(t *testing.T) {
		state := SlotState{
			LastSuccessAt: at(11, 7, 0),
			LastAttemptAt: at(11, 7, 0),
			Covered:       midnight(12),
		}
		assert.False(t, p.IsDue(types.FeedElectricityToday, at(12, 0, 5), state))

		state.Covered = midnight(11)
		assert.True(t, p.IsDue(types.FeedElectricityToday, at(12, 0, 5), state))
	})

	t.Run("Gas Publishes At 06:00", func(t *testing.T) {
		state := SlotState{
			LastSuccessAt: at(12, 7, 0),
			LastAttemptAt: at(12, 7, 0),
			Covered:       midnight(12),
		}
		assert.False(t, p.IsDue(types.FeedGasToday, at(12, 23, 0), state))
		assert.False(t, p.IsDue(types.FeedGasToday, at(13, 5, 59), state))
		assert.True(t, p.IsDue(types.FeedGasToday, at(13, 6, 0), state))
	})

	t.Run("Monotonic Until Success", func(t *testing.T) {
		state := SlotState{
			LastSuccessAt: at(12, 7, 0),
			LastAttemptAt: at(12, 7, 0),
			Covered:       midnight(12),
		}
		due := false
		for now := at(12, 7, 0); now.Before(at(13, 12, 0)); now = now.Add(5 * time.Minute) {
			d := p.IsDue(types.FeedGasToday, now, state)
			if due {
				assert.True(t, d, "became not due at %s", now)
			}
			due = due || d
		}
		assert.True(t, due)

		failed := SlotState{
			LastSuccessAt:       at(12, 7, 0),
			LastAttemptAt:       at(13, 6, 0),
			ConsecutiveFailures: 2,
			Covered:             midnight(12),
		}
		due = false
		for now := at(13, 6, 0); now.Before(at(13, 12, 0)); now = now.Add(time.Minute) {
			d := p.IsDue(types.FeedGasToday, now, failed)
			if due {
				assert.True(t, d, "became not due at %s", now)
			}
			due = due || d
		}
		assert.True(t, due)
	})

	t.Run("Across DST", func(t *testing.T) {
		// clocks go forward on March 31st 2024 in Amsterdam
		state := SlotState{
			LastSuccessAt: time.Date(2024, 3, 30, 7, 0, 0, 0, amsterdam),
			LastAttemptAt: time.Date(2024, 3, 30, 7, 0, 0, 0, amsterdam),
			Covered:       time.Date(2024, 3, 30, 0, 0, 0, 0, amsterdam),
		}
		assert.False(t, p.IsDue(types.FeedElectricityToday, time.Date(2024, 3, 30, 23, 59, 0, 0, amsterdam), state))
		assert.True(t, p.IsDue(types.FeedElectricityToday, time.Date(2024, 3, 31, 0, 0, 0, 0, amsterdam), state))
		assert.True(t, time.Date(2024, 3, 31, 0, 0, 0, 0, amsterdam).Equal(p.ExpectedDay(types.FeedElectricityToday, time.Date(2024, 3, 31, 4, 0, 0, 0, amsterdam))))
	})
}
