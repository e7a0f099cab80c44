package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
)

// DefaultPageSize matches the remote API default when size is omitted.
const DefaultPageSize = 20

var _ source.Source = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	items []core.Transaction
}

func New(items []core.Transaction) *Store {
	return &Store{items: append([]core.Transaction(nil), items...)}
}

// NewFromFiles seeds the store from base/seed_transactions.json. A missing
// file yields an empty store; an unreadable one is logged and also yields
// an empty store.
func NewFromFiles(base string) *Store {
	path := filepath.Join(base, "seed_transactions.json")
	items, err := readSeed(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Ignoring seed file", "path", path, "error", err)
		}
		return New(nil)
	}
	return New(items)
}

// Add appends transactions to the store.
func (s *Store) Add(txns ...core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, txns...)
}

func (s *Store) ListTransactions(_ context.Context, q source.Query) (source.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []core.Transaction
	for _, t := range s.items {
		if q.FromDate != "" && t.Date < q.FromDate {
			continue
		}
		if q.ToDate != "" && t.Date > q.ToDate {
			continue
		}
		if q.Type != "" && !t.IsType(core.TransactionType(q.Type)) {
			continue
		}
		matched = append(matched, t)
	}
	return paginate(matched, q.Page, q.Size), nil
}

func (s *Store) TransactionsForDay(_ context.Context, date string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.items {
		if t.Date == date {
			out = append(out, t)
		}
	}
	return out, nil
}

// TotalSpentInMonth sums debit amounts in the month.
func (s *Store) TotalSpentInMonth(_ context.Context, year, month int) (decimal.Decimal, error) {
	m, err := core.NewMonth(year, month)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, t := range s.items {
		if m.Contains(t.Date) && t.IsType(core.Debit) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (s *Store) TotalByDates(_ context.Context, dates []string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(dates))
	for _, date := range dates {
		out[date] = decimal.Zero
	}
	for _, t := range s.items {
		if cur, ok := out[t.Date]; ok && t.IsType(core.Debit) {
			out[t.Date] = cur.Add(t.Amount)
		}
	}
	return out, nil
}

func (s *Store) TotalSpentOnDates(ctx context.Context, dates []string) (decimal.Decimal, error) {
	byDate, err := s.TotalByDates(ctx, dates)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range byDate {
		total = total.Add(v)
	}
	return total, nil
}

// RunQuery is not available without a SQL engine.
func (s *Store) RunQuery(context.Context, string) (core.QueryResult, error) {
	return core.QueryResult{}, source.ErrQueryUnsupported
}

func paginate(items []core.Transaction, page, size int) source.Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 0 {
		page = 0
	}
	total := len(items)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	start := total
	if page <= total/size {
		start = page * size
	}
	end := total
	if size < total-start {
		end = start + size
	}
	return source.Page{
		Content:       append([]core.Transaction(nil), items[start:end]...),
		TotalElements: int64(total),
		TotalPages:    pages,
		Number:        page,
		Size:          size,
	}
}

func readSeed(path string) ([]core.Transaction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []core.Transaction
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}
