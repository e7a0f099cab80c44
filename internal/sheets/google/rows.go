package google

import (
	"strconv"
	"strings"

	"spendboard/internal/core"
)

// summaryWidth is the number of columns written by buildSummaryRows:
// daily totals in A:B, a spacer in C, top payees in D:F.
const summaryWidth = 6

// monthSheetName returns "<yyyy-MM> <base>" unless base already carries the month.
func monthSheetName(base string, m core.Month) string {
	base = strings.TrimSpace(base)
	prefix := m.String()
	if base == "" {
		return prefix
	}
	if strings.HasPrefix(base, prefix+" ") {
		return base
	}
	return prefix + " " + base
}

// buildSummaryRows lays out a month summary as a rectangular values matrix.
func buildSummaryRows(m core.Month, summary core.Summary, daily []core.DayTotal, payees []core.TopPayee) [][]any {
	rows := [][]any{
		padRow([]any{"Month", m.String()}),
		padRow([]any{"Transactions", summary.Count}),
		padRow([]any{"Total", summary.Total.StringFixed(2)}),
		padRow(nil),
		padRow([]any{"Date", "Total", "", "Payee", "Total", "Count"}),
	}

	n := len(daily)
	if len(payees) > n {
		n = len(payees)
	}
	for i := 0; i < n; i++ {
		row := make([]any, summaryWidth)
		for j := range row {
			row[j] = ""
		}
		if i < len(daily) {
			row[0] = daily[i].Date
			row[1] = daily[i].Total.StringFixed(2)
		}
		if i < len(payees) {
			row[3] = payees[i].Name
			row[4] = payees[i].Total.StringFixed(2)
			row[5] = strconv.Itoa(payees[i].Count)
		}
		rows = append(rows, row)
	}
	return rows
}

func padRow(cells []any) []any {
	row := make([]any, summaryWidth)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// columnLetter converts a 1-based column index to its A1 letters.
func columnLetter(n int) string {
	if n <= 0 {
		return ""
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
