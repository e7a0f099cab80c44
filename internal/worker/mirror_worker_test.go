package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/amqp"
	"spendboard/internal/core"
	"spendboard/internal/source"
	"spendboard/internal/source/memory"
	"spendboard/internal/storage"
)

type recordingExporter struct {
	month   core.Month
	summary core.Summary
	daily   []core.DayTotal
	payees  []core.TopPayee
	calls   int
}

func (r *recordingExporter) ExportMonthSummary(_ context.Context, m core.Month, s core.Summary, d []core.DayTotal, p []core.TopPayee) (string, error) {
	r.calls++
	r.month, r.summary, r.daily, r.payees = m, s, d, p
	return "'2025-03 Summary'!A1:F10", nil
}

type failingLister struct{}

func (failingLister) ListTransactions(context.Context, source.Query) (source.Page, error) {
	return source.Page{}, errors.New("api down")
}

func remoteFixture() *memory.Store {
	amt := decimal.RequireFromString
	return memory.New([]core.Transaction{
		{Date: "2025-02-27", Amount: amt("5"), Type: "DEBIT", PayeeName: "Bakery"},
		{Date: "2025-03-01", Amount: amt("100.25"), Type: "DEBIT", PayeeName: "Grocer"},
		{Date: "2025-03-01", Amount: amt("50"), Type: "DEBIT", PayeeName: "Cafe"},
		{Date: "2025-03-02", Amount: amt("2000"), Type: "CREDIT", PayeeName: "Employer"},
		{Date: "2025-03-15", Amount: amt("10.10"), Type: "DEBIT", PayeeName: "Cafe"},
	})
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRefreshMonthPagesAndMarks(t *testing.T) {
	repo := newRepo(t)
	// page size 1 forces several pages
	w := NewMirrorWorker(remoteFixture(), repo, nil, 1)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}

	n, err := w.RefreshMonth(ctx, m)
	if err != nil || n != 4 {
		t.Fatalf("RefreshMonth = %d (err=%v), want 4", n, err)
	}
	status, err := repo.MonthStatus(ctx, m)
	if err != nil || !status.Mirrored || status.Count != 4 {
		t.Fatalf("status = %+v (err=%v)", status, err)
	}

	// a second run replaces rather than appends
	if _, err := w.RefreshMonth(ctx, m); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	page, err := repo.ListTransactions(ctx, source.Query{Size: 100})
	if err != nil || page.TotalElements != 4 {
		t.Fatalf("mirror holds %d rows (err=%v), want 4", page.TotalElements, err)
	}
}

func TestRefreshMonthKeepsIdenticalTransactions(t *testing.T) {
	repo := newRepo(t)
	coffee := core.Transaction{Date: "2025-03-04", Amount: decimal.NewFromInt(20), Type: "DEBIT", PayeeName: "Cafe"}
	w := NewMirrorWorker(memory.New([]core.Transaction{coffee, coffee}), repo, nil, 0)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}

	if _, err := w.RefreshMonth(ctx, m); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	st, err := repo.MonthStatus(ctx, m)
	if err != nil || st.Count != 2 {
		t.Fatalf("status = %+v (err=%v), want count 2", st, err)
	}
	page, err := repo.ListTransactions(ctx, source.Query{FromDate: "2025-03-01", ToDate: "2025-03-31", Size: 10})
	if err != nil || page.TotalElements != 2 {
		t.Fatalf("mirror holds %d rows (err=%v), want 2", page.TotalElements, err)
	}
	total, err := repo.TotalSpentInMonth(ctx, 2025, 3)
	if err != nil || !total.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("total = %s (err=%v), want 40", total, err)
	}
}

func TestRefreshMonthPicksUpCorrections(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}
	rent := core.Transaction{Date: "2025-03-05", Amount: decimal.NewFromInt(500), Type: "DEBIT", PayeeName: "Landlord"}

	if _, err := NewMirrorWorker(memory.New([]core.Transaction{rent}), repo, nil, 0).RefreshMonth(ctx, m); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	rent.Amount = decimal.NewFromInt(50)
	if _, err := NewMirrorWorker(memory.New([]core.Transaction{rent}), repo, nil, 0).RefreshMonth(ctx, m); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	total, err := repo.TotalSpentInMonth(ctx, 2025, 3)
	if err != nil || !total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("total = %s (err=%v), want 50", total, err)
	}
}

func TestHandleRefreshMessage(t *testing.T) {
	repo := newRepo(t)
	w := NewMirrorWorker(remoteFixture(), repo, nil, 0)

	msg := amqp.NewMonthRefreshMessage(core.Month{Year: 2025, Month: time.February})
	if err := w.HandleRefreshMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	total, err := repo.TotalSpentInMonth(context.Background(), 2025, 2)
	if err != nil || !total.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("february total = %s (err=%v)", total, err)
	}

	bad := &amqp.MonthRefreshMessage{Year: 2025, Month: 0}
	if err := w.HandleRefreshMessage(context.Background(), bad); err == nil {
		t.Fatal("expected error for invalid month")
	}
}

func TestRefreshRecentMonthsReportsErrors(t *testing.T) {
	repo := newRepo(t)
	w := NewMirrorWorker(failingLister{}, repo, nil, 0)
	w.now = func() time.Time { return time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC) }

	err := w.RefreshRecentMonths(context.Background())
	if err == nil {
		t.Fatal("expected error from failing remote")
	}
	st, _ := repo.MonthStatus(context.Background(), core.Month{Year: 2025, Month: time.March})
	if st.Mirrored {
		t.Fatal("failed refresh must not mark the month mirrored")
	}
}

func TestRefreshRecentMonthsCoversPreviousMonth(t *testing.T) {
	repo := newRepo(t)
	w := NewMirrorWorker(remoteFixture(), repo, nil, 0)
	w.now = func() time.Time { return time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := w.RefreshRecentMonths(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, m := range []core.Month{{Year: 2025, Month: time.March}, {Year: 2025, Month: time.February}} {
		st, err := repo.MonthStatus(ctx, m)
		if err != nil || !st.Mirrored {
			t.Errorf("month %s not mirrored (err=%v)", m, err)
		}
	}
}

func TestExportMonth(t *testing.T) {
	repo := newRepo(t)
	exp := &recordingExporter{}
	w := NewMirrorWorker(remoteFixture(), repo, exp, 0)
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}

	if _, err := w.RefreshMonth(ctx, m); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := w.ExportMonth(ctx, m); err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.calls != 1 || exp.month != m {
		t.Fatalf("exporter calls=%d month=%v", exp.calls, exp.month)
	}
	if exp.summary.Count != 3 || !exp.summary.Total.Equal(decimal.RequireFromString("160.35")) {
		t.Errorf("summary = %+v", exp.summary)
	}
	if len(exp.daily) != 2 || len(exp.payees) != 2 || exp.payees[0].Name != "Grocer" {
		t.Errorf("daily=%v payees=%v", exp.daily, exp.payees)
	}
}

func TestExportMonthWithoutExporter(t *testing.T) {
	w := NewMirrorWorker(remoteFixture(), newRepo(t), nil, 0)
	if err := w.ExportMonth(context.Background(), core.Month{Year: 2025, Month: time.March}); err != nil {
		t.Fatalf("export without exporter: %v", err)
	}
}

func TestStartupSync(t *testing.T) {
	repo := newRepo(t)
	w := NewMirrorWorker(remoteFixture(), repo, nil, 0)
	w.now = func() time.Time { return time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC) }

	if err := w.StartupSync(context.Background()); err != nil {
		t.Fatalf("startup sync: %v", err)
	}
	st, err := repo.MonthStatus(context.Background(), core.Month{Year: 2025, Month: time.March})
	if err != nil || st.Count != 4 {
		t.Fatalf("status = %+v (err=%v)", st, err)
	}
}
