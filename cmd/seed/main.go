package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/shopspring/decimal"
)

// seed writes mock feed responses for use with -enever-mock-dir and
// optionally primes the stored request counter.
func main() {
	clock := common.ConfiguredClock()
	s := storage.Configured()
	dir := lflag.String("seed-dir", "./mock", "Directory to write the mock feed responses to")
	quarterHours := lflag.Bool("seed-quarter-hours", false, "Generate quarter-hour electricity prices instead of hourly")
	requests := lflag.String("seed-requests", "", "Store this request count for the current month (empty to leave it alone)")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock feeds")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := clock.Now()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		panic(fmt.Errorf("failed to create seed dir: %w", err))
	}
	for _, feed := range types.Feeds {
		day := types.Day(now).AddDate(0, 0, feed.DayOffset)
		body, err := json.MarshalIndent(feedResponse(feed, day, rng, *quarterHours), "", "  ")
		if err != nil {
			panic(fmt.Errorf("failed to encode %s: %w", feed.Type, err))
		}
		name := filepath.Join(*dir, feed.Endpoint+".json")
		if err := os.WriteFile(name, body, 0o644); err != nil {
			panic(fmt.Errorf("failed to write %s: %w", name, err))
		}
		log.Ctx(ctx).InfoContext(ctx, "wrote mock feed", "file", name)
	}

	if *requests != "" {
		count, err := strconv.Atoi(*requests)
		if err != nil || count < 0 {
			panic(fmt.Errorf("invalid seed-requests: %q", *requests))
		}
		counter := types.RequestCounter{Month: types.MonthKey(now), Count: count}
		if err := s.SetRequestCounter(ctx, counter); err != nil {
			panic(fmt.Errorf("failed to store request counter: %w", err))
		}
		log.Ctx(ctx).InfoContext(ctx, "stored request counter", "month", counter.Month, "count", counter.Count)
	}
}

// exchangePrice simulates the day-ahead price in EUR/kWh at t.
func exchangePrice(t time.Time, rng *rand.Rand) float64 {
	hour := t.Hour()
	basePrice := 0.08
	if hour >= 6 && hour < 9 {
		basePrice = 0.12 // Morning Peak
	} else if hour >= 10 && hour < 15 {
		// solar pushes mid-day prices down, sometimes below zero
		dist := math.Abs(float64(hour) - 12.5)
		basePrice = 0.06 - 0.08*math.Exp(-(dist*dist)/4.0)
	} else if hour >= 17 && hour < 21 {
		basePrice = 0.18 // Evening Peak
	}
	// Jitter
	return basePrice + (rng.Float64() * 0.02) - 0.01
}

// feedResponse builds a successful response of feed for day in the format
// the Enever API uses.
func feedResponse(feed types.FeedInfo, day time.Time, rng *rand.Rand, quarterHours bool) map[string]any {
	var items []map[string]string
	codes := types.ProviderCodes(feed.Commodity, nil)

	switch feed.Commodity {
	case types.CommodityGas:
		exchange := 0.30 + rng.Float64()*0.05
		item := map[string]string{"datum": day.Add(6 * time.Hour).Format("2006-01-02 15:04:05")}
		for i, code := range codes {
			// the exchange codes get the plain price, suppliers add taxes and a markup
			price := exchange
			if code != "EGSI" && code != "EOD" {
				price = exchange + 0.78 + float64(i)*0.01
			}
			item["prijs"+code] = decimal.NewFromFloat(price).StringFixed(6)
		}
		items = append(items, item)
	default:
		step := time.Hour
		if quarterHours {
			step = 15 * time.Minute
		}
		for t := day; types.SameDay(day, t); t = t.Add(step) {
			exchange := exchangePrice(t, rng)
			item := map[string]string{"datum": t.Format("2006-01-02 15:04:05")}
			for i, code := range codes {
				price := exchange
				if code != "" {
					price = exchange + 0.13 + float64(i)*0.002
				}
				item["prijs"+code] = decimal.NewFromFloat(price).StringFixed(6)
			}
			items = append(items, item)
		}
	}

	return map[string]any{
		"status": "true",
		"data":   items,
		"code":   "5",
	}
}
