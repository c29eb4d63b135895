package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/coordinator"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/policy"
	"github.com/jameshartig/enever/pkg/quota"
	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/jameshartig/enever/pkg/view"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var amsterdam = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		panic(err)
	}
	return loc
}()

var now = time.Date(2024, 3, 12, 9, 30, 0, 0, amsterdam)

var clock = common.NewClock(amsterdam, func() time.Time { return now })

// fakeFeed returns hourly electricity prices of 0.25 and a gas price of 1.10
// for VDB and the exchange on the day each feed should have.
func fakeFeed(p *policy.Policy) coordinator.FetcherFunc {
	return func(ctx context.Context, feed types.FeedType) (types.FeedData, error) {
		day := p.ExpectedDay(feed, clock.Now())
		var samples []types.Sample
		if feed == types.FeedGasToday {
			samples = []types.Sample{{Time: day.Add(6 * time.Hour), Price: decimal.RequireFromString("1.10")}}
		} else {
			for h := 0; h < 24; h++ {
				samples = append(samples, types.Sample{Time: day.Add(time.Duration(h) * time.Hour), Price: decimal.RequireFromString("0.25")})
			}
		}
		ts, err := types.NewTimeSeries(amsterdam, samples)
		if err != nil {
			return types.FeedData{}, err
		}
		return types.FeedData{
			Feed:   feed,
			Date:   ts.Date(),
			Series: map[string]types.TimeSeries{"VDB": ts, "": ts},
		}, nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p := policy.New(amsterdam, policy.DefaultElectricityRetry, policy.DefaultGasRetry)
	counter := quota.NewCounter(storage.NewMemory(), clock)
	c := coordinator.New(fakeFeed(p), p, clock, counter, time.Second)
	return &Server{
		view:   view.New(c, counter, clock, 15*time.Minute, []string{"", "VDB"}, []string{"VDB"}),
		ticker: c,
		clock:  clock,
	}
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestSensors(t *testing.T) {
	srv := newTestServer(t)
	h := srv.setupHandler()

	t.Run("Before First Tick", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/sensors/electricity/VDB")
		require.Equal(t, http.StatusOK, rr.Code)
		var sensor map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sensor))
		assert.Nil(t, sensor["price"])
		assert.Nil(t, sensor["prices_today"])
		assert.Nil(t, sensor["today_lastrequest"])
	})

	rr := do(h, http.MethodPost, "/api/update")
	require.Equal(t, http.StatusOK, rr.Code)
	var update updateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &update))
	assert.Equal(t, []types.FeedType{
		types.FeedElectricityToday,
		types.FeedElectricityTomorrow,
		types.FeedGasToday,
	}, update.Feeds)

	t.Run("Electricity", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/sensors/electricity/vdb")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var sensor types.ElectricitySensor
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sensor))
		assert.Equal(t, "VDB", sensor.Provider)
		require.NotNil(t, sensor.Price)
		assert.Equal(t, "0.25", sensor.Price.String())
		assert.Len(t, sensor.PricesToday, 24)
		require.NotNil(t, sensor.TodayAverage)
		assert.Equal(t, "0.25", sensor.TodayAverage.String())
		// tomorrow is not published before 15:00
		assert.Nil(t, sensor.PricesTomorrow)
		assert.Nil(t, sensor.TomorrowAverage)
		require.NotNil(t, sensor.TodayLastRequest)
		assert.True(t, now.Equal(*sensor.TodayLastRequest))
	})

	t.Run("Exchange Alias", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/sensors/electricity/beurs")
		require.Equal(t, http.StatusOK, rr.Code)
		var sensor types.ElectricitySensor
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sensor))
		assert.Equal(t, "Beursprijs", sensor.Name)
		require.NotNil(t, sensor.Price)
	})

	t.Run("Gas", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/sensors/gas/VDB")
		require.Equal(t, http.StatusOK, rr.Code)
		var sensor types.GasSensor
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sensor))
		require.NotNil(t, sensor.Price)
		assert.Equal(t, "1.1", sensor.Price.String())
		assert.Equal(t, "EUR/m³", sensor.Unit)
		assert.False(t, sensor.Stale)
	})

	t.Run("Unknown Provider", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/sensors/electricity/NOPE").Code)
		// not enabled
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/sensors/gas/EZ").Code)
		// no exchange gas price
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/sensors/gas/beurs").Code)
	})

	t.Run("All", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/sensors")
		require.Equal(t, http.StatusOK, rr.Code)
		var sensors types.Sensors
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sensors))
		assert.Len(t, sensors.Electricity, 2)
		assert.Len(t, sensors.Gas, 1)
		// the fake feed doesn't count requests
		assert.Equal(t, types.RequestCountSensor{Month: "2024-03"}, sensors.Requests)
	})

	t.Run("Requests", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/requests")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"month":"2024-03","count":0}`, rr.Body.String())
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/sensors").Code)
		assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/api/update").Code)
	})
}

func TestHealthzAndHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.serverName = "enever/test"
	h := srv.setupHandler()

	rr := do(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "enever/test", rr.Header().Get("Server"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = do(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "enever_api_requests_month")
}

func TestRun(t *testing.T) {
	srv := newTestServer(t)
	srv.listenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
