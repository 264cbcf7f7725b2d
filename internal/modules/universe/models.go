// Package universe manages the investment universe: the securities eligible
// for selection and their historical close prices.
package universe

// Security represents one asset in the universe. ISIN is the primary key;
// the symbol is display metadata only.
type Security struct {
	ISIN   string `json:"isin"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// DailyPrice is a single close-price observation for a security.
type DailyPrice struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}
