package models

import "fmt"

// MarketQuote is one asset's current price and change snapshot. Symbol is the
// display and lookup key; a snapshot never holds two quotes with the same symbol.
type MarketQuote struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`  // USD, non-negative
	Change float64 `json:"change"` // signed percent
	Volume string  `json:"volume"` // already display formatted upstream
}

// Snapshot is the ordered collection of quotes shown at a given moment.
type Snapshot []MarketQuote

// Validate checks the snapshot invariants: unique non-empty symbols and
// non-negative prices.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, q := range s {
		if q.Symbol == "" {
			return fmt.Errorf("quote %d: empty symbol", i)
		}
		if _, dup := seen[q.Symbol]; dup {
			return fmt.Errorf("duplicate symbol %q", q.Symbol)
		}
		seen[q.Symbol] = struct{}{}
		if q.Price < 0 {
			return fmt.Errorf("quote %q: negative price %v", q.Symbol, q.Price)
		}
	}
	return nil
}

// Symbols returns the snapshot's symbols in display order.
func (s Snapshot) Symbols() []string {
	out := make([]string, len(s))
	for i, q := range s {
		out[i] = q.Symbol
	}
	return out
}

// Country is one entry of the countries reference list.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Language is one entry of the languages reference list.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
