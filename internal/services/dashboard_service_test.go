package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
	"spendboard/internal/source/memory"
)

// countingSource wraps a memory store, counting listings and optionally
// failing selected calls.
type countingSource struct {
	*memory.Store
	lists     int32
	failList  bool
	failTotal bool
}

func (c *countingSource) ListTransactions(ctx context.Context, q source.Query) (source.Page, error) {
	atomic.AddInt32(&c.lists, 1)
	if c.failList {
		return source.Page{}, errors.New("api down")
	}
	return c.Store.ListTransactions(ctx, q)
}

func (c *countingSource) TotalSpentInMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	if c.failTotal {
		return decimal.Zero, errors.New("total down")
	}
	return c.Store.TotalSpentInMonth(ctx, year, month)
}

func fixture() *countingSource {
	amt := decimal.RequireFromString
	return &countingSource{Store: memory.New([]core.Transaction{
		{Date: "2025-03-01", Amount: amt("100.25"), Type: "DEBIT", PayeeName: "Grocer"},
		{Date: "2025-03-01", Amount: amt("50"), Type: "debit", PayeeName: " Cafe "},
		{Date: "2025-03-02", Amount: amt("2000"), Type: "CREDIT", PayeeName: "Employer"},
		{Date: "2025-03-15", Amount: amt("10.10"), Type: "DEBIT", ToUPI: "cafe@upi"},
		{Date: "2025-04-01", Amount: amt("999"), Type: "DEBIT", PayeeName: "Rent"},
	})}
}

var march = core.Month{Year: 2025, Month: time.March}

func TestDailyViewCountsDebitsOnly(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)

	view, err := svc.DailyView(context.Background(), march)
	if err != nil {
		t.Fatalf("daily view: %v", err)
	}
	if view.Summary.Count != 3 || !view.Summary.Total.Equal(decimal.RequireFromString("160.35")) {
		t.Errorf("summary = %+v", view.Summary)
	}
	if len(view.Daily) != 2 || view.Daily[0].Date != "2025-03-01" || !view.Daily[0].Total.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("daily = %+v", view.Daily)
	}
	if !view.HasReportedTotal || !view.ReportedTotal.Equal(view.Summary.Total) {
		t.Errorf("reported total = %s (%v)", view.ReportedTotal, view.HasReportedTotal)
	}
}

func TestDailyViewToleratesTotalFailure(t *testing.T) {
	src := fixture()
	src.failTotal = true
	svc := NewDashboardService(src, nil)

	view, err := svc.DailyView(context.Background(), march)
	if err != nil {
		t.Fatalf("daily view: %v", err)
	}
	if view.HasReportedTotal || view.Summary.Count != 3 {
		t.Errorf("view = %+v", view)
	}
}

func TestDailyViewFailsWhenListingFails(t *testing.T) {
	src := fixture()
	src.failList = true
	svc := NewDashboardService(src, nil)

	view, err := svc.DailyView(context.Background(), march)
	if err == nil {
		t.Fatal("expected error")
	}
	if view.Summary.Count != 0 || len(view.Daily) != 0 {
		t.Errorf("failed view should be empty, got %+v", view)
	}
}

func TestChartsViewIncludesEveryType(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)

	view, err := svc.ChartsView(context.Background(), march)
	if err != nil {
		t.Fatalf("charts view: %v", err)
	}
	if view.Summary.Count != 4 || !view.Summary.Total.Equal(decimal.RequireFromString("2160.35")) {
		t.Errorf("summary = %+v", view.Summary)
	}
	sum := decimal.Zero
	for _, p := range view.ByPayee {
		sum = sum.Add(p.Total)
	}
	if !sum.Equal(view.Summary.Total) {
		t.Errorf("payee slices sum to %s, want %s", sum, view.Summary.Total)
	}
	if len(view.ByPayee) != 4 || view.ByPayee[3].Name != "cafe@upi" {
		t.Errorf("by payee = %+v", view.ByPayee)
	}
}

func TestMonthTransactionsAreCached(t *testing.T) {
	src := fixture()
	svc := NewDashboardService(src, nil)
	ctx := context.Background()

	if _, err := svc.ChartsView(ctx, march); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DailyView(ctx, march); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&src.lists); n != 1 {
		t.Errorf("listings = %d, want 1", n)
	}

	svc.Invalidate()
	if _, err := svc.ChartsView(ctx, march); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&src.lists); n != 2 {
		t.Errorf("listings after invalidate = %d, want 2", n)
	}
}

func TestTopPayeesAndSearch(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)
	ctx := context.Background()

	all, err := svc.TopPayees(ctx, "")
	if err != nil {
		t.Fatalf("top payees: %v", err)
	}
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	want := []string{"Rent", "Grocer", "Cafe", "cafe@upi"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	found, err := svc.TopPayees(ctx, "CAFE")
	if err != nil || len(found) != 2 {
		t.Fatalf("search = %+v (err=%v)", found, err)
	}
}

func TestDayDetail(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)
	ctx := context.Background()

	day, err := svc.DayDetail(ctx, "2025-03-01")
	if err != nil || len(day) != 2 {
		t.Fatalf("day = %+v (err=%v)", day, err)
	}
	credit, err := svc.DayDetail(ctx, "2025-03-02")
	if err != nil || len(credit) != 0 {
		t.Fatalf("credits must be excluded, got %+v (err=%v)", credit, err)
	}
	if _, err := svc.DayDetail(ctx, "03/01/2025"); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRecentDefaultsToTen(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)
	page, err := svc.Recent(context.Background(), -1, 0)
	if err != nil || page.Size != RecentPageSize || page.Number != 0 || len(page.Content) != 5 {
		t.Fatalf("page = %+v (err=%v)", page, err)
	}
}

func TestRunQuery(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)
	ctx := context.Background()

	if _, err := svc.RunQuery(ctx, "   "); !errors.Is(err, core.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := svc.RunQuery(ctx, "select 1"); !errors.Is(err, source.ErrQueryUnsupported) {
		t.Fatalf("expected ErrQueryUnsupported, got %v", err)
	}
}

func TestTotals(t *testing.T) {
	svc := NewDashboardService(fixture(), nil)
	ctx := context.Background()

	total, err := svc.MonthTotal(ctx, march)
	if err != nil || !total.Equal(decimal.RequireFromString("160.35")) {
		t.Fatalf("month total = %s (err=%v)", total, err)
	}
	if _, err := svc.MonthTotal(ctx, core.Month{Year: 2025}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	byDate, err := svc.TotalsByDates(ctx, []string{"2025-03-01", "2025-03-02"})
	if err != nil || !byDate["2025-03-01"].Equal(decimal.RequireFromString("150.25")) || !byDate["2025-03-02"].IsZero() {
		t.Fatalf("by dates = %v (err=%v)", byDate, err)
	}
	sum, err := svc.TotalOnDates(ctx, []string{"2025-03-01", "2025-03-15"})
	if err != nil || !sum.Equal(decimal.RequireFromString("160.35")) {
		t.Fatalf("on dates = %s (err=%v)", sum, err)
	}
}
