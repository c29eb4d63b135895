package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/enever"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/quota"
	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func TestFeedResponse(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	now := time.Date(2024, 3, 12, 9, 0, 0, 0, loc)
	clock := common.NewClock(loc, func() time.Time { return now })
	rng := rand.New(rand.NewSource(1))

	responses := map[string][]byte{}
	for _, feed := range types.Feeds {
		body, err := json.Marshal(feedResponse(feed, types.Day(now).AddDate(0, 0, feed.DayOffset), rng, true))
		require.NoError(t, err)
		responses["/"+feed.Endpoint] = body
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(responses[r.URL.Path])
	}))
	defer ts.Close()

	c := enever.New(ts.URL, "token", ts.Client(), quota.NewCounter(storage.NewMemory(), clock), clock)

	today, err := c.Fetch(context.Background(), types.FeedElectricityToday)
	require.NoError(t, err)
	assert.Len(t, today.Series, len(types.ProviderCodes(types.CommodityElectricity, nil)))
	vdb, ok := today.Provider("VDB")
	require.True(t, ok)
	assert.Equal(t, 96, vdb.Len())

	tomorrow, err := c.Fetch(context.Background(), types.FeedElectricityTomorrow)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 13, 0, 0, 0, 0, loc).Equal(tomorrow.Date))

	gas, err := c.Fetch(context.Background(), types.FeedGasToday)
	require.NoError(t, err)
	assert.Len(t, gas.Series, len(types.ProviderCodes(types.CommodityGas, nil)))
	egsi, ok := gas.Provider("EGSI")
	require.True(t, ok)
	assert.Equal(t, 1, egsi.Len())
}
