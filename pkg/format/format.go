// Package format renders quote values the way the site displays them.
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Policy selects how many fraction digits a price is shown with.
type Policy int

const (
	// Tiered picks digits by magnitude: 2 from 1000 up, 4 from 1 up, 6 below 1.
	Tiered Policy = iota
	// Fixed2 always shows 2 digits.
	Fixed2
)

func (p Policy) String() string {
	switch p {
	case Tiered:
		return "tiered"
	case Fixed2:
		return "fixed2"
	default:
		return "unknown"
	}
}

// Digits returns the fraction digits used for price under p.
func (p Policy) Digits(price float64) int {
	if p == Fixed2 {
		return 2
	}
	switch {
	case price >= 1000:
		return 2
	case price >= 1:
		return 4
	default:
		return 6
	}
}

var usd = message.NewPrinter(language.AmericanEnglish)

// Price formats price as US dollars with thousands grouping and exactly the
// policy's fraction digits. Ties round away from zero on the exact binary value.
func Price(p Policy, price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "-"
	}
	digits := p.Digits(math.Abs(price))
	rounded := decimal.NewFromFloatWithExponent(price, -int32(digits))

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	return sign + "$" + usd.Sprintf(fmt.Sprintf("%%.%df", digits), rounded.InexactFloat64())
}

// Change formats a percent change with an explicit "+" when non-negative.
func Change(change float64) string {
	if change >= 0 {
		return "+" + strconv.FormatFloat(math.Abs(change), 'f', 2, 64) + "%"
	}
	return strconv.FormatFloat(change, 'f', 2, 64) + "%"
}

// Movement formats the magnitude of a percent change.
func Movement(change float64) string {
	return strconv.FormatFloat(math.Abs(change), 'f', 2, 64) + "%"
}

// Updated renders a last-update time relative to now ("12 seconds ago").
func Updated(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
