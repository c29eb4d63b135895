package types

import "fmt"

// Commodity is the kind of energy a price applies to.
type Commodity string

const (
	CommodityElectricity Commodity = "electricity"
	CommodityGas         Commodity = "gas"
)

// Unit returns the unit prices of the commodity are expressed in.
func (c Commodity) Unit() string {
	switch c {
	case CommodityElectricity:
		return "EUR/kWh"
	case CommodityGas:
		return "EUR/m³"
	default:
		return ""
	}
}

// FeedType identifies a single upstream feed endpoint.
type FeedType string

const (
	FeedElectricityToday    FeedType = "electricity_today"
	FeedElectricityTomorrow FeedType = "electricity_tomorrow"
	FeedGasToday            FeedType = "gas_today"
)

// FeedInfo maps a feed to its endpoint and commodity.
type FeedInfo struct {
	Type      FeedType
	Commodity Commodity
	Endpoint  string
	// DayOffset is the day, relative to the request day, the feed publishes
	// prices for once it is up to date.
	DayOffset int
}

// Feeds is the table of all feeds in the order they are fetched within a tick.
var Feeds = []FeedInfo{
	{
		Type:      FeedElectricityToday,
		Commodity: CommodityElectricity,
		Endpoint:  "stroomprijs_vandaag.php",
	},
	{
		Type:      FeedElectricityTomorrow,
		Commodity: CommodityElectricity,
		Endpoint:  "stroomprijs_morgen.php",
		DayOffset: 1,
	},
	{
		Type:      FeedGasToday,
		Commodity: CommodityGas,
		Endpoint:  "gasprijs_vandaag.php",
	},
}

// Info returns the table entry for the feed. It panics for unknown feeds since
// feeds are a closed set.
func (f FeedType) Info() FeedInfo {
	for _, info := range Feeds {
		if info.Type == f {
			return info
		}
	}
	panic(fmt.Errorf("unknown feed type: %s", f))
}

// FeedsFor returns the feeds carrying prices for the commodity, in order.
func FeedsFor(c Commodity) []FeedType {
	var feeds []FeedType
	for _, info := range Feeds {
		if info.Commodity == c {
			feeds = append(feeds, info.Type)
		}
	}
	return feeds
}
