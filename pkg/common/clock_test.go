package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	fixed := time.Date(2024, 3, 12, 6, 0, 0, 0, time.UTC)
	c := NewClock(loc, func() time.Time { return fixed })

	assert.Equal(t, loc, c.Location())
	assert.Equal(t, loc, c.Now().Location())
	assert.True(t, fixed.Equal(c.Now()))
	assert.Equal(t, 7, c.Now().Hour())

	wall := NewClock(time.UTC, nil)
	assert.WithinDuration(t, time.Now(), wall.Now(), time.Minute)
}
