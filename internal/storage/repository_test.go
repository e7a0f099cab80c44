package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "mirror.db"))
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func txn(date, amount, typ, payee string) core.Transaction {
	return core.Transaction{
		Date:      date,
		Amount:    decimal.RequireFromString(amount),
		Type:      typ,
		PayeeName: payee,
		BankName:  "HDFC",
	}
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	march := []core.Transaction{
		txn("2025-03-01", "100.25", "DEBIT", "Grocer"),
		txn("2025-03-01", "50", "debit", "Cafe"),
		txn("2025-03-02", "2000", "CREDIT", "Employer"),
		txn("2025-03-15", "10.10", "DEBIT", "Cafe"),
	}
	if _, err := repo.ReplaceMonth(ctx, core.Month{Year: 2025, Month: time.March}, march); err != nil {
		t.Fatalf("seed march: %v", err)
	}
	april := []core.Transaction{txn("2025-04-01", "999", "DEBIT", "Rent")}
	if _, err := repo.ReplaceMonth(ctx, core.Month{Year: 2025, Month: time.April}, april); err != nil {
		t.Fatalf("seed april: %v", err)
	}
}

func TestReplaceMonthKeepsIdenticalTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}
	coffee := txn("2025-03-01", "20", "DEBIT", "Cafe")

	n, err := repo.ReplaceMonth(ctx, m, []core.Transaction{coffee, coffee})
	if err != nil || n != 2 {
		t.Fatalf("ReplaceMonth = %d (err=%v), want 2", n, err)
	}
	total, err := repo.TotalSpentInMonth(ctx, 2025, 3)
	if err != nil || !total.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("total = %s (err=%v), want 40", total, err)
	}
	st, err := repo.MonthStatus(ctx, m)
	if err != nil || !st.Mirrored || st.Count != 2 {
		t.Fatalf("status = %+v (err=%v)", st, err)
	}
}

func TestReplaceMonthDropsStaleRows(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	// Upstream corrected the Grocer amount and removed both Cafe rows.
	corrected := []core.Transaction{
		txn("2025-03-01", "10.25", "DEBIT", "Grocer"),
		txn("2025-03-02", "2000", "CREDIT", "Employer"),
		txn("2025-02-28", "7", "DEBIT", "Elsewhere"),
	}
	n, err := repo.ReplaceMonth(ctx, core.Month{Year: 2025, Month: time.March}, corrected)
	if err != nil || n != 2 {
		t.Fatalf("ReplaceMonth = %d (err=%v), want 2", n, err)
	}

	total, err := repo.TotalSpentInMonth(ctx, 2025, 3)
	if err != nil || !total.Equal(decimal.RequireFromString("10.25")) {
		t.Fatalf("march total = %s (err=%v), want 10.25", total, err)
	}
	feb, err := repo.TotalSpentInMonth(ctx, 2025, 2)
	if err != nil || !feb.IsZero() {
		t.Fatalf("rows outside the month must be skipped, february = %s (err=%v)", feb, err)
	}
	april, err := repo.TotalSpentInMonth(ctx, 2025, 4)
	if err != nil || !april.Equal(decimal.NewFromInt(999)) {
		t.Fatalf("other months must be untouched, april = %s (err=%v)", april, err)
	}
}

func TestSharedFileWriterAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	writer, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer writer.Close()
	reader, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer reader.Close()

	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}
	batch := make([]core.Transaction, 50)
	for i := range batch {
		batch[i] = txn(fmt.Sprintf("2025-03-%02d", i%28+1), "1", "DEBIT", "Cafe")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			if _, err := writer.ReplaceMonth(ctx, m, batch); err != nil {
				errs <- fmt.Errorf("writer: %w", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := reader.ReplaceMonth(ctx, m, batch[:10]); err != nil {
				errs <- fmt.Errorf("second writer: %w", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := reader.ListTransactions(ctx, source.Query{FromDate: "2025-03-01", ToDate: "2025-03-31", Size: 100}); err != nil {
				errs <- fmt.Errorf("list: %w", err)
			}
			if _, err := reader.TotalSpentInMonth(ctx, 2025, 3); err != nil {
				errs <- fmt.Errorf("total: %w", err)
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	// A replace is atomic, so readers only ever see one full batch.
	page, err := reader.ListTransactions(ctx, source.Query{FromDate: "2025-03-01", ToDate: "2025-03-31", Size: 100})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalElements != 50 && page.TotalElements != 10 {
		t.Errorf("mirror holds %d rows, want a whole batch", page.TotalElements)
	}
}

func TestListTransactionsHugePage(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	page, err := repo.ListTransactions(context.Background(), source.Query{Page: math.MaxInt / 10, Size: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Content) != 0 || page.TotalElements != 5 {
		t.Fatalf("page = %+v", page)
	}
}

func TestListTransactionsFiltersAndPages(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	page, err := repo.ListTransactions(ctx, source.Query{FromDate: "2025-03-01", ToDate: "2025-03-31", Type: "DEBIT", Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 3 || page.TotalPages != 2 || len(page.Content) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Last() {
		t.Fatalf("first of two pages reported as last")
	}

	next, err := repo.ListTransactions(ctx, source.Query{FromDate: "2025-03-01", ToDate: "2025-03-31", Type: "DEBIT", Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(next.Content) != 1 || next.Content[0].Date != "2025-03-15" || !next.Last() {
		t.Fatalf("unexpected second page: %+v", next)
	}
	if !next.Content[0].Amount.Equal(decimal.RequireFromString("10.10")) {
		t.Fatalf("amount lost precision: %s", next.Content[0].Amount)
	}
}

func TestTotals(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	month, err := repo.TotalSpentInMonth(ctx, 2025, 3)
	if err != nil || !month.Equal(decimal.RequireFromString("160.35")) {
		t.Fatalf("month total = %s (err=%v)", month, err)
	}
	if _, err := repo.TotalSpentInMonth(ctx, 2025, 13); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}

	byDate, err := repo.TotalByDates(ctx, []string{"2025-03-01", "2025-03-02"})
	if err != nil {
		t.Fatalf("by dates: %v", err)
	}
	if !byDate["2025-03-01"].Equal(decimal.RequireFromString("150.25")) || !byDate["2025-03-02"].IsZero() {
		t.Fatalf("by dates = %v", byDate)
	}

	sum, err := repo.TotalSpentOnDates(ctx, []string{"2025-03-01", "2025-03-15"})
	if err != nil || !sum.Equal(decimal.RequireFromString("160.35")) {
		t.Fatalf("dates total = %s (err=%v)", sum, err)
	}
}

func TestTransactionsForDay(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	day, err := repo.TransactionsForDay(context.Background(), "2025-03-01")
	if err != nil || len(day) != 2 {
		t.Fatalf("day = %+v (err=%v)", day, err)
	}
}

func TestMonthStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}

	st, err := repo.MonthStatus(ctx, m)
	if err != nil || st.Mirrored {
		t.Fatalf("fresh month status = %+v (err=%v)", st, err)
	}
	if err := repo.MarkMonthMirrored(ctx, m, 4); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := repo.MarkMonthMirrored(ctx, m, 5); err != nil {
		t.Fatalf("mark again: %v", err)
	}
	st, err = repo.MonthStatus(ctx, m)
	if err != nil || !st.Mirrored || st.Count != 5 || st.SyncedAt.IsZero() {
		t.Fatalf("status = %+v (err=%v)", st, err)
	}
}

func TestRunQuery(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	res, err := repo.RunQuery(ctx, "SELECT payee_name, COUNT(*) AS n FROM transactions WHERE type = 'DEBIT' GROUP BY payee_name ORDER BY payee_name;")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "payee_name" || res.Columns[1] != "n" {
		t.Fatalf("columns = %v", res.Columns)
	}
	if len(res.Rows) != 3 || res.Rows[0][0] != "Cafe" {
		t.Fatalf("rows = %v", res.Rows)
	}
}

func TestRunQueryRejectsWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"empty", "  ;", core.ErrEmptyQuery},
		{"delete", "DELETE FROM transactions", ErrReadOnlyQuery},
		{"stacked", "SELECT 1; DROP TABLE transactions", ErrReadOnlyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.RunQuery(ctx, tt.query); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunQueryReportsSQLErrors(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.RunQuery(context.Background(), "SELECT nope FROM missing_table")
	var qe *source.QueryError
	if !errors.As(err, &qe) || qe.Message == "" {
		t.Fatalf("expected QueryError, got %v", err)
	}
}
