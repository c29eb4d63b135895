// Package view derives the values exposed to consumers from the cached feeds.
// Nothing is stored, every value is recomputed from the slots on each read.
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jameshartig/enever/pkg/cache"
	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/shopspring/decimal"
)

// ErrUnknownProvider is returned for providers that are unknown, disabled or
// don't support the commodity.
var ErrUnknownProvider = errors.New("unknown provider")

// Slots gives access to the slot of each feed.
type Slots interface {
	Slot(feed types.FeedType) *cache.Slot
}

// Counter reports the request count of the current month.
type Counter interface {
	Current(now time.Time) types.RequestCounter
}

// View computes sensors from the slots.
type View struct {
	slots        Slots
	counter      Counter
	clock        *common.Clock
	readInterval time.Duration
	electricity  []string
	gas          []string
}

// Configured registers the provider and read interval flags and returns a
// view usable after the flags are parsed.
func Configured(slots Slots, counter Counter, clock *common.Clock) *View {
	v := &View{
		slots:   slots,
		counter: counter,
		clock:   clock,
	}
	readInterval := lflag.Duration("electricity-read-interval", 15*time.Minute, "Granularity of the current electricity price (15m or 1h)")
	electricity := lflag.String("providers-electricity", "", "Comma-separated electricity provider codes to expose (empty for all)")
	gas := lflag.String("providers-gas", "", "Comma-separated gas provider codes to expose (empty for all)")

	lflag.Do(func() {
		if *readInterval != 15*time.Minute && *readInterval != time.Hour {
			panic(fmt.Errorf("electricity-read-interval must be 15m or 1h, got %s", *readInterval))
		}
		v.readInterval = *readInterval

		var err error
		if v.electricity, err = parseProviders(types.CommodityElectricity, *electricity); err != nil {
			panic(err)
		}
		if v.gas, err = parseProviders(types.CommodityGas, *gas); err != nil {
			panic(err)
		}
	})

	return v
}

// New returns a view exposing the given providers. Empty provider lists expose
// every provider supporting the commodity.
func New(slots Slots, counter Counter, clock *common.Clock, readInterval time.Duration, electricity, gas []string) *View {
	return &View{
		slots:        slots,
		counter:      counter,
		clock:        clock,
		readInterval: readInterval,
		electricity:  types.ProviderCodes(types.CommodityElectricity, electricity),
		gas:          types.ProviderCodes(types.CommodityGas, gas),
	}
}

func parseProviders(c types.Commodity, list string) ([]string, error) {
	var codes []string
	for _, code := range strings.Split(list, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		p, ok := types.LookupProvider(code)
		if !ok || !p.Supports(c) {
			return nil, fmt.Errorf("provider %q does not publish %s prices", code, c)
		}
		codes = append(codes, code)
	}
	return types.ProviderCodes(c, codes), nil
}

// Providers returns the exposed provider codes for the commodity.
func (v *View) Providers(c types.Commodity) []string {
	switch c {
	case types.CommodityElectricity:
		return v.electricity
	case types.CommodityGas:
		return v.gas
	default:
		return nil
	}
}

func (v *View) enabled(c types.Commodity, provider string) bool {
	return slices.Contains(v.Providers(c), provider)
}

// TodaySeries returns today's electricity prices of provider. Yesterday's
// tomorrow prices are used if the today feed has no data for today yet.
func (v *View) TodaySeries(provider string, now time.Time) (types.TimeSeries, bool) {
	now = now.In(v.clock.Location())
	if ts, ok := v.slots.Slot(types.FeedElectricityToday).Read().SeriesFor(provider, now); ok {
		return ts, true
	}
	return v.slots.Slot(types.FeedElectricityTomorrow).Read().SeriesFor(provider, now)
}

// TomorrowSeries returns tomorrow's electricity prices of provider once they
// are published.
func (v *View) TomorrowSeries(provider string, now time.Time) (types.TimeSeries, bool) {
	tomorrow := types.Day(now.In(v.clock.Location())).AddDate(0, 0, 1)
	return v.slots.Slot(types.FeedElectricityTomorrow).Read().SeriesFor(provider, tomorrow)
}

// readSlot is the start of the read interval containing now, counted from
// local midnight so zones with non-hour offsets still read on the hour.
func (v *View) readSlot(now time.Time) time.Time {
	day := types.Day(now.In(v.clock.Location()))
	return day.Add(now.Sub(day).Truncate(v.readInterval))
}

// CurrentPrice returns the price of provider for the commodity at now. It is
// absent only when no valid price exists.
func (v *View) CurrentPrice(ctx context.Context, provider string, c types.Commodity, now time.Time) (decimal.Decimal, bool) {
	switch c {
	case types.CommodityElectricity:
		ts, ok := v.TodaySeries(provider, now)
		if !ok {
			return decimal.Zero, false
		}
		s, ok := ts.At(v.readSlot(now))
		if !ok {
			return decimal.Zero, false
		}
		return s.Price, true
	case types.CommodityGas:
		p, ok := v.slots.Slot(types.FeedGasToday).Read().GasValue(ctx, provider, now)
		if !ok {
			return decimal.Zero, false
		}
		return p.Price, true
	default:
		return decimal.Zero, false
	}
}

// ElectricitySensor returns the electricity sensor of provider at now.
func (v *View) ElectricitySensor(ctx context.Context, provider string, now time.Time) (types.ElectricitySensor, error) {
	info, ok := types.LookupProvider(provider)
	if !ok || !v.enabled(types.CommodityElectricity, provider) {
		return types.ElectricitySensor{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	sensor := types.ElectricitySensor{
		Provider: provider,
		Name:     info.Name,
		Unit:     types.CommodityElectricity.Unit(),
	}
	if price, ok := v.CurrentPrice(ctx, provider, types.CommodityElectricity, now); ok {
		sensor.Price = &price
	}
	if ts, ok := v.TodaySeries(provider, now); ok {
		sensor.PricesToday = ts.Samples()
		if avg, ok := ts.Average(); ok {
			sensor.TodayAverage = &avg
		}
	}
	if ts, ok := v.TomorrowSeries(provider, now); ok {
		sensor.PricesTomorrow = ts.Samples()
		if avg, ok := ts.Average(); ok {
			sensor.TomorrowAverage = &avg
		}
	}
	sensor.TodayLastRequest = lastSuccess(v.slots.Slot(types.FeedElectricityToday))
	sensor.TomorrowLastRequest = lastSuccess(v.slots.Slot(types.FeedElectricityTomorrow))
	return sensor, nil
}

// GasSensor returns the gas sensor of provider at now.
func (v *View) GasSensor(ctx context.Context, provider string, now time.Time) (types.GasSensor, error) {
	info, ok := types.LookupProvider(provider)
	if !ok || !v.enabled(types.CommodityGas, provider) {
		return types.GasSensor{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	slot := v.slots.Slot(types.FeedGasToday)
	sensor := types.GasSensor{
		Provider:    provider,
		Name:        info.Name,
		Unit:        types.CommodityGas.Unit(),
		LastRequest: lastSuccess(slot),
	}
	if p, ok := slot.Read().GasValue(ctx, provider, now); ok {
		sensor.Price = &p.Price
		sensor.Stale = p.Stale
	}
	return sensor, nil
}

// Requests returns the request counter sensor at now.
func (v *View) Requests(now time.Time) types.RequestCountSensor {
	c := v.counter.Current(now)
	return types.RequestCountSensor{Month: c.Month, Count: c.Count}
}

// Sensors returns every exposed sensor at the current time.
func (v *View) Sensors(ctx context.Context) types.Sensors {
	now := v.clock.Now()
	s := types.Sensors{
		Time:        now,
		Electricity: make([]types.ElectricitySensor, 0, len(v.electricity)),
		Gas:         make([]types.GasSensor, 0, len(v.gas)),
		Requests:    v.Requests(now),
	}
	for _, p := range v.electricity {
		sensor, err := v.ElectricitySensor(ctx, p, now)
		if err != nil {
			continue
		}
		s.Electricity = append(s.Electricity, sensor)
	}
	for _, p := range v.gas {
		sensor, err := v.GasSensor(ctx, p, now)
		if err != nil {
			continue
		}
		s.Gas = append(s.Gas, sensor)
	}
	return s
}

func lastSuccess(slot *cache.Slot) *time.Time {
	t := slot.Read().LastSuccessAt
	if t.IsZero() {
		return nil
	}
	return &t
}
