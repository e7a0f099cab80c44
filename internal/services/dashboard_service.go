package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spendboard/internal/cache"
	"spendboard/internal/core"
	"spendboard/internal/source"
)

const (
	// MonthPageSize is the page size used to fetch a month of transactions.
	MonthPageSize = 1000
	// RecentPageSize is the default size of the recent transactions list.
	RecentPageSize = 10

	allTransactionsKey = "all"
)

// DailyView backs the daily spending dashboard. Only debits are counted.
type DailyView struct {
	Month   core.Month
	Summary core.Summary
	Daily   []core.DayTotal
	// ReportedTotal is the backend's own month total, when available.
	ReportedTotal    decimal.Decimal
	HasReportedTotal bool
}

// ChartsView backs the monthly charts page. Every transaction type counts.
type ChartsView struct {
	Month   core.Month
	Summary core.Summary
	ByPayee []core.PayeeTotal
	Daily   []core.DayTotal
}

// DashboardService composes the transaction source with caching and the
// core aggregations used by the pages and JSON endpoints.
type DashboardService struct {
	src    source.Source
	loader *cache.Loader[[]core.Transaction]
	now    func() time.Time
}

// NewDashboardService creates a service over src. Fetched month listings are
// kept in c; pass nil to use a small default cache.
func NewDashboardService(src source.Source, c cache.Cache[[]core.Transaction]) *DashboardService {
	if c == nil {
		c = cache.NewLRUCache[[]core.Transaction](24, 30*time.Second)
	}
	return &DashboardService{
		src:    src,
		loader: cache.NewLoader(c),
		now:    time.Now,
	}
}

// CurrentMonth returns the month shown when none is selected.
func (s *DashboardService) CurrentMonth() core.Month {
	return core.CurrentMonth(s.now())
}

// MonthTransactions returns every transaction dated within m.
func (s *DashboardService) MonthTransactions(ctx context.Context, m core.Month) ([]core.Transaction, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.loader.Get(ctx, "month:"+m.String(), func(ctx context.Context) ([]core.Transaction, error) {
		from, to := m.Range()
		txns, err := source.CollectPages(ctx, s.src, source.Query{FromDate: from, ToDate: to, Size: MonthPageSize})
		if err != nil {
			return nil, fmt.Errorf("transactions for %s: %w", m, err)
		}
		return txns, nil
	})
}

// DailyView fetches the month and the backend total concurrently. A failed
// total is logged and left out; a failed listing fails the view.
func (s *DashboardService) DailyView(ctx context.Context, m core.Month) (DailyView, error) {
	view := DailyView{Month: m}
	var txns []core.Transaction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.MonthTransactions(gctx, m)
		return err
	})
	g.Go(func() error {
		total, err := s.src.TotalSpentInMonth(gctx, m.Year, int(m.Month))
		if err != nil {
			slog.WarnContext(ctx, "Month total unavailable", "month", m.String(), "error", err)
			return nil
		}
		view.ReportedTotal = total
		view.HasReportedTotal = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return DailyView{Month: m}, err
	}

	debits := core.Debits(txns)
	view.Summary = core.Summarize(debits)
	view.Daily = core.DailyTotals(debits)
	return view, nil
}

func (s *DashboardService) ChartsView(ctx context.Context, m core.Month) (ChartsView, error) {
	txns, err := s.MonthTransactions(ctx, m)
	if err != nil {
		return ChartsView{Month: m}, err
	}
	return ChartsView{
		Month:   m,
		Summary: core.Summarize(txns),
		ByPayee: core.ByPayee(txns),
		Daily:   core.DailyTotals(txns),
	}, nil
}

// DayDetail returns the debits of a single day, as shown when hovering the
// daily chart.
func (s *DashboardService) DayDetail(ctx context.Context, date string) ([]core.Transaction, error) {
	if err := core.ValidateDate(date); err != nil {
		return nil, err
	}
	txns, err := s.src.TransactionsForDay(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("transactions for day %s: %w", date, err)
	}
	return core.Debits(txns), nil
}

// TopPayees ranks payees over every transaction, filtered by search.
func (s *DashboardService) TopPayees(ctx context.Context, search string) ([]core.TopPayee, error) {
	txns, err := s.loader.Get(ctx, allTransactionsKey, func(ctx context.Context) ([]core.Transaction, error) {
		txns, err := source.CollectPages(ctx, s.src, source.Query{Size: MonthPageSize})
		if err != nil {
			return nil, fmt.Errorf("all transactions: %w", err)
		}
		return txns, nil
	})
	if err != nil {
		return nil, err
	}
	return core.FilterPayees(core.TopPayees(txns), search), nil
}

// MonthPayees ranks the payees of one month's debits.
func (s *DashboardService) MonthPayees(ctx context.Context, m core.Month) ([]core.TopPayee, error) {
	txns, err := s.MonthTransactions(ctx, m)
	if err != nil {
		return nil, err
	}
	return core.TopPayees(txns), nil
}

// Recent returns one page of the unfiltered transaction list.
func (s *DashboardService) Recent(ctx context.Context, page, size int) (source.Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = RecentPageSize
	}
	p, err := s.src.ListTransactions(ctx, source.Query{Page: page, Size: size})
	if err != nil {
		return source.Page{}, fmt.Errorf("recent transactions: %w", err)
	}
	return p, nil
}

// RunQuery executes an ad-hoc SQL query against the backend.
func (s *DashboardService) RunQuery(ctx context.Context, sql string) (core.QueryResult, error) {
	if strings.TrimSpace(sql) == "" {
		return core.QueryResult{}, core.ErrEmptyQuery
	}
	start := time.Now()
	res, err := s.src.RunQuery(ctx, sql)
	if err != nil {
		return core.QueryResult{}, err
	}
	slog.InfoContext(ctx, "Query executed",
		"rows", len(res.Rows),
		"columns", len(res.Columns),
		"duration", time.Since(start))
	return res, nil
}

func (s *DashboardService) MonthTotal(ctx context.Context, m core.Month) (decimal.Decimal, error) {
	if err := m.Validate(); err != nil {
		return decimal.Zero, err
	}
	return s.src.TotalSpentInMonth(ctx, m.Year, int(m.Month))
}

func (s *DashboardService) TotalsByDates(ctx context.Context, dates []string) (map[string]decimal.Decimal, error) {
	return s.src.TotalByDates(ctx, dates)
}

func (s *DashboardService) TotalOnDates(ctx context.Context, dates []string) (decimal.Decimal, error) {
	return s.src.TotalSpentOnDates(ctx, dates)
}

// Invalidate drops cached listings so the next view refetches.
func (s *DashboardService) Invalidate() {
	s.loader.Invalidate()
}
