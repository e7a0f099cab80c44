package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of transaction dates (yyyy-MM-dd).
const DateLayout = "2006-01-02"

// MonthLayout is the format accepted by the month picker (yyyy-MM).
const MonthLayout = "2006-01"

const (
	Debit  TransactionType = "DEBIT"
	Credit TransactionType = "CREDIT"
)

type (
	TransactionType string

	// Transaction mirrors a record served by the transactions API.
	Transaction struct {
		Date              string          `json:"date"`
		Amount            decimal.Decimal `json:"amount"`
		Type              string          `json:"type"`
		ToUPI             string          `json:"toUpi"`
		PayeeName         string          `json:"payeeName"`
		BankName          string          `json:"bankName"`
		EmailReceivedDate string          `json:"emailReceivedDate,omitempty"`
	}

	// Month identifies a calendar month.
	Month struct {
		Year  int
		Month time.Month
	}
)

var (
	ErrInvalidMonth = errors.New("invalid month")
	ErrInvalidDate  = errors.New("invalid date")
	ErrEmptyQuery   = errors.New("empty query")
)

// IsType reports whether the transaction type matches typ, ignoring case.
func (t Transaction) IsType(typ TransactionType) bool {
	return strings.EqualFold(strings.TrimSpace(t.Type), string(typ))
}

// ReceivedAt parses EmailReceivedDate. The backend emits either RFC3339 or a
// zone-less local timestamp.
func (t Transaction) ReceivedAt() (time.Time, bool) {
	s := strings.TrimSpace(t.EmailReceivedDate)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseMonth parses a yyyy-MM string.
func ParseMonth(s string) (Month, error) {
	ts, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: ts.Year(), Month: ts.Month()}, nil
}

// NewMonth builds a Month and validates the month number.
func NewMonth(year, month int) (Month, error) {
	m := Month{Year: year, Month: time.Month(month)}
	if err := m.Validate(); err != nil {
		return Month{}, err
	}
	return m, nil
}

// CurrentMonth returns the month containing now.
func CurrentMonth(now time.Time) Month {
	return Month{Year: now.Year(), Month: now.Month()}
}

func (m Month) Validate() error {
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	if m.Year < 1 || m.Year > 9999 {
		return ErrInvalidMonth
	}
	return nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Range returns the first and last day of the month as yyyy-MM-dd.
func (m Month) Range() (from, to string) {
	first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format(DateLayout), last.Format(DateLayout)
}

// Prev returns the preceding month.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Next returns the following month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Contains reports whether a yyyy-MM-dd date falls inside the month.
func (m Month) Contains(date string) bool {
	return strings.HasPrefix(date, m.String()+"-")
}

// ValidateDate checks a yyyy-MM-dd string.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return nil
}

// ParseDateList splits a comma-separated list of yyyy-MM-dd dates, dropping
// blanks and rejecting malformed entries.
func ParseDateList(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := ValidateDate(part); err != nil {
			return nil, err
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no dates", ErrInvalidDate)
	}
	return out, nil
}
