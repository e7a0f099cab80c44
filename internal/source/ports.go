package source

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
)

// ErrQueryUnsupported is returned by backends that cannot run ad-hoc SQL.
var ErrQueryUnsupported = errors.New("query console not supported by this backend")

// Query selects a page of transactions. Zero-valued fields are omitted
// from the outgoing request.
type Query struct {
	FromDate string
	ToDate   string
	Type     string
	Page     int
	Size     int
}

// Page is one page of a paginated transaction listing.
type Page struct {
	Content       []core.Transaction `json:"content"`
	TotalElements int64              `json:"totalElements"`
	TotalPages    int                `json:"totalPages"`
	Number        int                `json:"number"`
	Size          int                `json:"size"`
}

// Last reports whether no further pages follow this one.
func (p Page) Last() bool {
	return p.TotalPages == 0 || p.Number+1 >= p.TotalPages
}

// Ports for outbound adapters.
type (
	TransactionLister interface {
		ListTransactions(ctx context.Context, q Query) (Page, error)
	}

	// DayReader returns every transaction on a single date.
	DayReader interface {
		TransactionsForDay(ctx context.Context, date string) ([]core.Transaction, error)
	}

	// TotalsReader exposes the server-side spend totals.
	TotalsReader interface {
		TotalSpentInMonth(ctx context.Context, year, month int) (decimal.Decimal, error)
		TotalByDates(ctx context.Context, dates []string) (map[string]decimal.Decimal, error)
		TotalSpentOnDates(ctx context.Context, dates []string) (decimal.Decimal, error)
	}

	// QueryRunner executes an ad-hoc SQL query against the transaction store.
	QueryRunner interface {
		RunQuery(ctx context.Context, sql string) (core.QueryResult, error)
	}

	// Source bundles every port a backend provides.
	Source interface {
		TransactionLister
		DayReader
		TotalsReader
		QueryRunner
	}
)

// QueryError carries a message reported by the backend for a failed query.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}
