package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendboard/internal/amqp"
	"spendboard/internal/core"
	"spendboard/internal/source"
)

// DefaultPageSize is the page size used when paging the remote API.
const DefaultPageSize = 500

// MirrorStore is the local side of the mirror.
type MirrorStore interface {
	source.TransactionLister
	ReplaceMonth(ctx context.Context, m core.Month, txns []core.Transaction) (int, error)
}

// SummaryExporter writes a month summary to an external sheet.
type SummaryExporter interface {
	ExportMonthSummary(ctx context.Context, m core.Month, summary core.Summary, daily []core.DayTotal, payees []core.TopPayee) (string, error)
}

// MirrorWorker copies transactions from the remote API into SQLite and
// optionally exports monthly summaries to Google Sheets.
type MirrorWorker struct {
	remote   source.TransactionLister
	store    MirrorStore
	exporter SummaryExporter
	pageSize int
	now      func() time.Time
}

// NewMirrorWorker creates a worker. exporter may be nil.
func NewMirrorWorker(remote source.TransactionLister, store MirrorStore, exporter SummaryExporter, pageSize int) *MirrorWorker {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MirrorWorker{
		remote:   remote,
		store:    store,
		exporter: exporter,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// HandleRefreshMessage processes a single month refresh message from AMQP
func (w *MirrorWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.MonthRefreshMessage) error {
	m, err := msg.CoreMonth()
	if err != nil {
		return fmt.Errorf("refresh message: %w", err)
	}
	slog.InfoContext(ctx, "Processing refresh message",
		"month", m.String(),
		"requested_at", msg.Timestamp)

	_, err = w.RefreshMonth(ctx, m)
	return err
}

// RefreshMonth pages every transaction of m from the remote API and swaps
// them in for the month's mirrored rows, so corrections and deletions
// upstream are picked up. It returns the number of transactions the API
// reported for the month.
func (w *MirrorWorker) RefreshMonth(ctx context.Context, m core.Month) (int, error) {
	from, to := m.Range()
	txns, err := source.CollectPages(ctx, w.remote, source.Query{FromDate: from, ToDate: to, Size: w.pageSize})
	if err != nil {
		return 0, fmt.Errorf("fetch month %s: %w", m, err)
	}

	stored, err := w.store.ReplaceMonth(ctx, m, txns)
	if err != nil {
		return 0, fmt.Errorf("store month %s: %w", m, err)
	}

	slog.InfoContext(ctx, "Month mirrored",
		"month", m.String(),
		"fetched", len(txns),
		"stored", stored)
	return len(txns), nil
}

// RefreshRecentMonths refreshes the current and previous month. Both are
// attempted even if the first fails.
func (w *MirrorWorker) RefreshRecentMonths(ctx context.Context) error {
	current := core.CurrentMonth(w.now())
	var errs []error
	for _, m := range []core.Month{current, current.Prev()} {
		if _, err := w.RefreshMonth(ctx, m); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh month", "month", m.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportMonth writes the month's debit summary from the mirror to the
// configured exporter. Without an exporter it is a no-op.
func (w *MirrorWorker) ExportMonth(ctx context.Context, m core.Month) error {
	if w.exporter == nil {
		slog.DebugContext(ctx, "No summary exporter configured, skipping export", "month", m.String())
		return nil
	}

	from, to := m.Range()
	txns, err := source.CollectPages(ctx, w.store, source.Query{FromDate: from, ToDate: to, Size: w.pageSize})
	if err != nil {
		return fmt.Errorf("read mirror for %s: %w", m, err)
	}

	debits := core.Debits(txns)
	ref, err := w.exporter.ExportMonthSummary(ctx, m, core.Summarize(debits), core.DailyTotals(debits), core.TopPayees(debits))
	if err != nil {
		return fmt.Errorf("export month %s: %w", m, err)
	}

	slog.InfoContext(ctx, "Month summary exported", "month", m.String(), "ref", ref)
	return nil
}

// ExportCurrentMonth exports the month containing now.
func (w *MirrorWorker) ExportCurrentMonth(ctx context.Context) error {
	return w.ExportMonth(ctx, core.CurrentMonth(w.now()))
}

// StartupSync mirrors the current month when the worker boots, so the
// dashboard has data before the first scheduled run.
func (w *MirrorWorker) StartupSync(ctx context.Context) error {
	m := core.CurrentMonth(w.now())
	n, err := w.RefreshMonth(ctx, m)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "month", m.String(), "transactions", n)
	return nil
}
