package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Fallback keys for transactions with neither payee name nor UPI id.
const (
	OtherPayee   = "Other"
	UnknownPayee = "Unknown"
)

// Summary is a count and total over a set of transactions.
type Summary struct {
	Count int
	Total decimal.Decimal
}

// DayTotal is the sum of amounts on one date.
type DayTotal struct {
	Date  string
	Total decimal.Decimal
}

// PayeeTotal is the sum of amounts for one payee.
type PayeeTotal struct {
	Name  string
	Total decimal.Decimal
}

// PayeeTransaction is a single row in a payee's detail table.
type PayeeTransaction struct {
	Date   string
	Amount decimal.Decimal
}

// TopPayee aggregates the debits paid to one payee.
type TopPayee struct {
	Name         string
	Total        decimal.Decimal
	Count        int
	Transactions []PayeeTransaction
}

func Summarize(txns []Transaction) Summary {
	s := Summary{Count: len(txns), Total: decimal.Zero}
	for _, t := range txns {
		s.Total = s.Total.Add(t.Amount)
	}
	return s
}

// FilterType keeps the transactions of the given type.
func FilterType(txns []Transaction, typ TransactionType) []Transaction {
	out := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		if t.IsType(typ) {
			out = append(out, t)
		}
	}
	return out
}

func Debits(txns []Transaction) []Transaction {
	return FilterType(txns, Debit)
}

// DailyTotals groups amounts by date, sorted ascending.
func DailyTotals(txns []Transaction) []DayTotal {
	byDay := make(map[string]decimal.Decimal)
	for _, t := range txns {
		byDay[t.Date] = byDay[t.Date].Add(t.Amount)
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DayTotal, len(days))
	for i, d := range days {
		out[i] = DayTotal{Date: d, Total: byDay[d]}
	}
	return out
}

// ByPayee groups amounts by payee name, then UPI id, then "Other".
// Groups are returned in the order they were first seen.
func ByPayee(txns []Transaction) []PayeeTotal {
	index := make(map[string]int)
	var out []PayeeTotal
	for _, t := range txns {
		key := t.PayeeName
		if key == "" {
			key = t.ToUPI
		}
		if key == "" {
			key = OtherPayee
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, PayeeTotal{Name: key, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(t.Amount)
	}
	return out
}

// TopPayees ranks payees of debit transactions by total spent.
func TopPayees(txns []Transaction) []TopPayee {
	index := make(map[string]int)
	var out []TopPayee
	for _, t := range txns {
		if !t.IsType(Debit) {
			continue
		}
		name := payeeKey(t)
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, TopPayee{Name: name, Total: decimal.Zero})
		}
		p := &out[i]
		p.Total = p.Total.Add(t.Amount)
		p.Count++
		p.Transactions = append(p.Transactions, PayeeTransaction{Date: t.Date, Amount: t.Amount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

func payeeKey(t Transaction) string {
	if name := strings.TrimSpace(t.PayeeName); name != "" {
		return name
	}
	if upi := strings.TrimSpace(t.ToUPI); upi != "" {
		return upi
	}
	return UnknownPayee
}

// FilterPayees keeps payees whose name contains text, ignoring case.
func FilterPayees(payees []TopPayee, text string) []TopPayee {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return append([]TopPayee(nil), payees...)
	}
	var out []TopPayee
	for _, p := range payees {
		if strings.Contains(strings.ToLower(p.Name), text) {
			out = append(out, p)
		}
	}
	return out
}
