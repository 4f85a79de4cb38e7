package utils

import (
	"math"
	"strconv"
	"strings"
)

// FormatPrice rounds a price to the specified tick size
func FormatPrice(price, tickSize float64) float64 {
	if tickSize > 0 {
		return math.Round(price/tickSize) * tickSize
	}
	return price
}

// FormatPriceToString formats a price to string with tick size precision
func FormatPriceToString(price, tickSize float64) string {
	if tickSize <= 0 {
		return strconv.FormatFloat(price, 'f', -1, 64)
	}

	decimals := 0
	if tick := strconv.FormatFloat(tickSize, 'f', -1, 64); strings.Contains(tick, ".") {
		decimals = len(tick) - strings.Index(tick, ".") - 1
	}

	return strconv.FormatFloat(FormatPrice(price, tickSize), 'f', decimals, 64)
}

// FormatUnits renders signed whole units for order bodies.
func FormatUnits(units float64) string {
	return strconv.FormatInt(int64(math.Trunc(units)), 10)
}

// ParseFloat parses a numeric string, returning 0 for empty or bad input.
func ParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Truncate cuts s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
