// Package core provides money formatting utilities.
//
// Amounts travel as decimal values end to end; conversion to float happens
// only at the chart boundary.
package core

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatRupees renders an amount as whole rupees with thousands separators.
//
// Examples:
//
//	FormatRupees(1234.4)  -> "₹1,234"
//	FormatRupees(1234.5)  -> "₹1,235"
//	FormatRupees(-12)     -> "-₹12"
func FormatRupees(d decimal.Decimal) string {
	rounded := d.Round(0)
	if rounded.IsNegative() {
		return "-₹" + humanize.Comma(rounded.Neg().IntPart())
	}
	return "₹" + humanize.Comma(rounded.IntPart())
}

// ChartValue converts an amount for chart payloads.
func ChartValue(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
