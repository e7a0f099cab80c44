package adapters

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
	"spendboard/internal/storage"
)

// RefreshPublisher requests a background mirror of one month.
type RefreshPublisher interface {
	PublishMonthRefresh(ctx context.Context, m core.Month) error
}

// MirrorAdapter serves reads from the SQLite mirror and asks the worker to
// refresh months that are missing or stale. The HTTP layer sees a plain
// source.Source.
type MirrorAdapter struct {
	storage    *storage.SQLiteRepository
	publisher  RefreshPublisher
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	requested map[core.Month]time.Time
}

// requestCooldown is how long a published refresh suppresses further
// requests for the same month, so one page render publishes once.
const requestCooldown = 30 * time.Second

var _ source.Source = (*MirrorAdapter)(nil)

func NewMirrorAdapter(storage *storage.SQLiteRepository, publisher RefreshPublisher, staleAfter time.Duration) *MirrorAdapter {
	return &MirrorAdapter{
		storage:    storage,
		publisher:  publisher,
		staleAfter: staleAfter,
		now:        time.Now,
		requested:  make(map[core.Month]time.Time),
	}
}

// ListTransactions implements source.TransactionLister
func (a *MirrorAdapter) ListTransactions(ctx context.Context, q source.Query) (source.Page, error) {
	if q.FromDate != "" {
		if ts, err := time.Parse(core.DateLayout, q.FromDate); err == nil {
			a.ensureFresh(ctx, core.CurrentMonth(ts))
		}
	}
	return a.storage.ListTransactions(ctx, q)
}

// TransactionsForDay implements source.DayReader
func (a *MirrorAdapter) TransactionsForDay(ctx context.Context, date string) ([]core.Transaction, error) {
	return a.storage.TransactionsForDay(ctx, date)
}

// TotalSpentInMonth implements source.TotalsReader
func (a *MirrorAdapter) TotalSpentInMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	if m, err := core.NewMonth(year, month); err == nil {
		a.ensureFresh(ctx, m)
	}
	return a.storage.TotalSpentInMonth(ctx, year, month)
}

func (a *MirrorAdapter) TotalByDates(ctx context.Context, dates []string) (map[string]decimal.Decimal, error) {
	return a.storage.TotalByDates(ctx, dates)
}

func (a *MirrorAdapter) TotalSpentOnDates(ctx context.Context, dates []string) (decimal.Decimal, error) {
	return a.storage.TotalSpentOnDates(ctx, dates)
}

// RunQuery implements source.QueryRunner
func (a *MirrorAdapter) RunQuery(ctx context.Context, sql string) (core.QueryResult, error) {
	return a.storage.RunQuery(ctx, sql)
}

// ensureFresh publishes a refresh request when m was never mirrored or
// was mirrored more than staleAfter ago, at most once per requestCooldown.
// Failures never block the read.
func (a *MirrorAdapter) ensureFresh(ctx context.Context, m core.Month) {
	if a.publisher == nil || a.recentlyRequested(m) {
		return
	}
	status, err := a.storage.MonthStatus(ctx, m)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read mirror status", "month", m.String(), "error", err)
		return
	}
	if status.Mirrored && (a.staleAfter <= 0 || a.now().Sub(status.SyncedAt) < a.staleAfter) {
		return
	}
	if err := a.publisher.PublishMonthRefresh(ctx, m); err != nil {
		slog.WarnContext(ctx, "Failed to request month refresh", "month", m.String(), "error", err)
		return
	}
	a.markRequested(m)
	slog.DebugContext(ctx, "Requested month refresh",
		"month", m.String(),
		"mirrored", status.Mirrored,
		"synced_at", status.SyncedAt)
}

func (a *MirrorAdapter) recentlyRequested(m core.Month) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.requested[m]
	return ok && a.now().Sub(at) < requestCooldown
}

func (a *MirrorAdapter) markRequested(m core.Month) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for k, at := range a.requested {
		if now.Sub(at) >= requestCooldown {
			delete(a.requested, k)
		}
	}
	a.requested[m] = now
}
