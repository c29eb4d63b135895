package types

import "time"

// MonthKeyFormat is the layout of RequestCounter.Month.
const MonthKeyFormat = "2006-01"

// RequestCounter counts the upstream API requests made in a calendar month.
type RequestCounter struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// MonthKey returns the month key for t in t's location.
func MonthKey(t time.Time) string {
	return t.Format(MonthKeyFormat)
}

// StartOfNextMonth returns the first instant of the month after t.
func StartOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}
