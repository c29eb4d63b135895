package types

import "slices"

// ProviderInfo describes an energy supplier whose prices are published in the
// Enever feeds.
type ProviderInfo struct {
	// Code is the suffix used for the price key in the feed, e.g. "prijsAA".
	// The empty code is the day-ahead exchange price.
	Code        string `json:"code"`
	Name        string `json:"name"`
	Electricity bool   `json:"electricity"`
	Gas         bool   `json:"gas"`
}

// Providers is the table of all known providers in the order they are exposed.
var Providers = []ProviderInfo{
	{Code: "", Name: "Beursprijs", Electricity: true},
	{Code: "AA", Name: "Atoom Alliantie", Electricity: true, Gas: true},
	{Code: "AIP", Name: "All in power", Electricity: true, Gas: true},
	{Code: "ANWB", Name: "ANWB Energie", Electricity: true, Gas: true},
	{Code: "BE", Name: "Budget Energie", Electricity: true, Gas: true},
	{Code: "EE", Name: "EasyEnergy", Electricity: true, Gas: true},
	{Code: "EN", Name: "Eneco", Electricity: true, Gas: true},
	{Code: "EVO", Name: "Energie VanOns", Electricity: true, Gas: true},
	{Code: "EZ", Name: "EnergyZero", Electricity: true, Gas: true},
	{Code: "FR", Name: "Frank Energie", Electricity: true, Gas: true},
	{Code: "GSL", Name: "Groenestroom Lokaal", Electricity: true, Gas: true},
	{Code: "MDE", Name: "Mijndomein Energie", Electricity: true, Gas: true},
	{Code: "NE", Name: "NextEnergy", Electricity: true, Gas: true},
	{Code: "TI", Name: "Tibber", Electricity: true},
	{Code: "VDB", Name: "Vandebron", Electricity: true, Gas: true},
	{Code: "VON", Name: "Vrij op naam", Electricity: true, Gas: true},
	{Code: "WE", Name: "Wout Energie", Electricity: true, Gas: true},
	{Code: "ZG", Name: "ZonderGas", Electricity: true, Gas: true},
	{Code: "ZP", Name: "Zonneplan", Electricity: true, Gas: true},
	{Code: "EGSI", Name: "Beursprijs EGSI", Gas: true},
	{Code: "EOD", Name: "Beursprijs EOD", Gas: true},
}

// LookupProvider returns the provider with the given code.
func LookupProvider(code string) (ProviderInfo, bool) {
	for _, p := range Providers {
		if p.Code == code {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// Supports returns true if the provider publishes prices for the commodity.
func (p ProviderInfo) Supports(c Commodity) bool {
	switch c {
	case CommodityElectricity:
		return p.Electricity
	case CommodityGas:
		return p.Gas
	default:
		return false
	}
}

// ProviderCodes returns the codes of all providers supporting the commodity.
// If enabled is non-empty, only codes also present in enabled are returned.
// The order always follows the Providers table.
func ProviderCodes(c Commodity, enabled []string) []string {
	var codes []string
	for _, p := range Providers {
		if !p.Supports(c) {
			continue
		}
		if len(enabled) > 0 && !slices.Contains(enabled, p.Code) {
			continue
		}
		codes = append(codes, p.Code)
	}
	return codes
}

// AllProviderCodes returns the code of every known provider.
func AllProviderCodes() []string {
	codes := make([]string, 0, len(Providers))
	for _, p := range Providers {
		codes = append(codes, p.Code)
	}
	return codes
}
