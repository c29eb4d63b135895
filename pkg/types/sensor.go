package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ElectricitySensor is the value exposed for one electricity provider.
type ElectricitySensor struct {
	Provider string           `json:"provider"`
	Name     string           `json:"name"`
	Unit     string           `json:"unit"`
	Price    *decimal.Decimal `json:"price"`

	PricesToday     []Sample         `json:"prices_today"`
	PricesTomorrow  []Sample         `json:"prices_tomorrow"`
	TodayAverage    *decimal.Decimal `json:"today_average"`
	TomorrowAverage *decimal.Decimal `json:"tomorrow_average"`

	TodayLastRequest    *time.Time `json:"today_lastrequest"`
	TomorrowLastRequest *time.Time `json:"tomorrow_lastrequest"`
}

// GasSensor is the value exposed for one gas provider.
type GasSensor struct {
	Provider string           `json:"provider"`
	Name     string           `json:"name"`
	Unit     string           `json:"unit"`
	Price    *decimal.Decimal `json:"price"`
	// Stale is set when yesterday's price is served within the grace period.
	Stale       bool       `json:"stale"`
	LastRequest *time.Time `json:"lastrequest"`
}

// RequestCountSensor exposes the number of API requests this month.
type RequestCountSensor struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Sensors is every exposed value at a point in time.
type Sensors struct {
	Time        time.Time           `json:"time"`
	Electricity []ElectricitySensor `json:"electricity"`
	Gas         []GasSensor         `json:"gas"`
	Requests    RequestCountSensor  `json:"requests"`
}
