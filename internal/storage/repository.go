package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"

	_ "modernc.org/sqlite"
)

// MaxQueryRows caps the rows returned by RunQuery.
const MaxQueryRows = 1000

var _ source.Source = (*SQLiteRepository)(nil)

var ErrReadOnlyQuery = errors.New("only a single SELECT or WITH statement is allowed")

type SQLiteRepository struct {
	db *sql.DB
}

// MonthStatus describes when a month was last copied from the remote API.
type MonthStatus struct {
	Month    core.Month
	Mirrored bool
	Count    int
	SyncedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// DSN adds the pragmas every connection needs: the web process and the
// worker share the file, so readers use WAL and writers wait for the lock
// instead of failing with SQLITE_BUSY. Write transactions take the lock at
// BEGIN so a commit never has to.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ReplaceMonth swaps the mirrored rows of m for txns and records the month
// as mirrored, all in one transaction. Identical transactions are kept as
// separate rows; rows dated outside m are skipped. It returns the number of
// rows written.
func (r *SQLiteRepository) ReplaceMonth(ctx context.Context, m core.Month, txns []core.Transaction) (int, error) {
	from, to := m.Range()
	inMonth := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.Date < from || t.Date > to {
			slog.WarnContext(ctx, "Skipping transaction outside refreshed month", "month", m.String(), "date", t.Date)
			continue
		}
		inMonth = append(inMonth, t)
	}
	txns = inMonth

	var removed int64
	err := r.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE txn_date BETWEEN ? AND ?`, from, to)
		if err != nil {
			return fmt.Errorf("clear month %s: %w", m, err)
		}
		removed, _ = res.RowsAffected()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions
				(txn_date, amount, amount_value, type, to_upi, payee_name, bank_name, email_received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range txns {
			if _, err := stmt.ExecContext(ctx,
				t.Date, t.Amount.String(), t.Amount.InexactFloat64(),
				t.Type, t.ToUPI, t.PayeeName, t.BankName, t.EmailReceivedDate); err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.Date, err)
			}
		}
		return markMirrored(ctx, tx, m, len(txns))
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Month replaced in SQLite mirror",
		"month", m.String(),
		"removed", removed,
		"inserted", len(txns))
	return len(txns), nil
}

// withWriteTx runs fn in a transaction on a dedicated connection. If the
// commit fails the connection is discarded, since SQLite may leave it
// inside the transaction.
func (r *SQLiteRepository) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func markMirrored(ctx context.Context, db execer, m core.Month, count int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO mirrored_months (year, month, txn_count, synced_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month) DO UPDATE SET txn_count = excluded.txn_count, synced_at = excluded.synced_at`,
		m.Year, int(m.Month), count, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mark month %s mirrored: %w", m, err)
	}
	return nil
}

// MarkMonthMirrored records a completed refresh of a month.
func (r *SQLiteRepository) MarkMonthMirrored(ctx context.Context, m core.Month, count int) error {
	return markMirrored(ctx, r.db, m, count)
}

func (r *SQLiteRepository) MonthStatus(ctx context.Context, m core.Month) (MonthStatus, error) {
	status := MonthStatus{Month: m}
	var syncedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT txn_count, synced_at FROM mirrored_months WHERE year = ? AND month = ?`,
		m.Year, int(m.Month)).Scan(&status.Count, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("month status %s: %w", m, err)
	}
	status.Mirrored = true
	if ts, err := time.Parse(time.RFC3339, syncedAt); err == nil {
		status.SyncedAt = ts
	}
	return status, nil
}

const selectColumns = `txn_date, amount, type, to_upi, payee_name, bank_name, email_received_at`

func (r *SQLiteRepository) ListTransactions(ctx context.Context, q source.Query) (source.Page, error) {
	where, args := buildWhere(q)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return source.Page{}, fmt.Errorf("count transactions: %w", err)
	}

	size := q.Size
	if size <= 0 {
		size = 20
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	pages := total / int64(size)
	if total%int64(size) != 0 {
		pages++
	}
	result := source.Page{
		TotalElements: total,
		TotalPages:    int(pages),
		Number:        page,
		Size:          size,
	}
	// Past the end; also keeps page*size from overflowing.
	if int64(page) > total/int64(size) {
		return result, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions`+where+` ORDER BY txn_date, id LIMIT ? OFFSET ?`,
		append(args, size, page*size)...)
	if err != nil {
		return source.Page{}, fmt.Errorf("list transactions: %w", err)
	}
	content, err := scanTransactions(rows)
	if err != nil {
		return source.Page{}, err
	}
	result.Content = content
	return result, nil
}

func buildWhere(q source.Query) (string, []any) {
	var clauses []string
	var args []any
	if q.FromDate != "" {
		clauses = append(clauses, "txn_date >= ?")
		args = append(args, q.FromDate)
	}
	if q.ToDate != "" {
		clauses = append(clauses, "txn_date <= ?")
		args = append(args, q.ToDate)
	}
	if q.Type != "" {
		clauses = append(clauses, "UPPER(type) = UPPER(?)")
		args = append(args, q.Type)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *SQLiteRepository) TransactionsForDay(ctx context.Context, date string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE txn_date = ? ORDER BY email_received_at, id`, date)
	if err != nil {
		return nil, fmt.Errorf("transactions for day %s: %w", date, err)
	}
	return scanTransactions(rows)
}

// TotalSpentInMonth sums debit amounts in the month.
func (r *SQLiteRepository) TotalSpentInMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	m, err := core.NewMonth(year, month)
	if err != nil {
		return decimal.Zero, err
	}
	from, to := m.Range()
	return r.sumDebits(ctx, `txn_date BETWEEN ? AND ?`, from, to)
}

func (r *SQLiteRepository) TotalByDates(ctx context.Context, dates []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	args := make([]any, len(dates))
	for i, d := range dates {
		out[d] = decimal.Zero
		args[i] = d
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT txn_date, amount FROM transactions WHERE UPPER(type) = 'DEBIT' AND txn_date IN (`+placeholders(len(dates))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("totals by dates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date, amount string
		if err := rows.Scan(&date, &amount); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		out[date] = out[date].Add(v)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) TotalSpentOnDates(ctx context.Context, dates []string) (decimal.Decimal, error) {
	byDate, err := r.TotalByDates(ctx, dates)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range byDate {
		total = total.Add(v)
	}
	return total, nil
}

// sumDebits adds amounts in Go to keep decimal precision.
func (r *SQLiteRepository) sumDebits(ctx context.Context, cond string, args ...any) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT amount FROM transactions WHERE UPPER(type) = 'DEBIT' AND `+cond, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum debits: %w", err)
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

// RunQuery executes a read-only statement on a connection with
// query_only enabled. At most MaxQueryRows rows are returned.
func (r *SQLiteRepository) RunQuery(ctx context.Context, query string) (core.QueryResult, error) {
	stmt, err := normalizeReadOnly(query)
	if err != nil {
		return core.QueryResult{}, err
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `PRAGMA query_only = ON`); err != nil {
		return core.QueryResult{}, fmt.Errorf("enable query_only: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `PRAGMA query_only = OFF`); err != nil {
			slog.Warn("Failed to reset query_only", "error", err)
		}
	}()

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return core.QueryResult{}, &source.QueryError{Message: err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("read columns: %w", err)
	}
	result := core.QueryResult{Columns: cols}
	for rows.Next() {
		if len(result.Rows) >= MaxQueryRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return core.QueryResult{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return core.QueryResult{}, &source.QueryError{Message: err.Error()}
	}
	return result, nil
}

func normalizeReadOnly(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, ";"))
	if stmt == "" {
		return "", core.ErrEmptyQuery
	}
	if strings.Contains(stmt, ";") {
		return "", ErrReadOnlyQuery
	}
	lower := strings.ToLower(stmt)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", ErrReadOnlyQuery
	}
	return stmt, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var amount string
		if err := rows.Scan(&t.Date, &amount, &t.Type, &t.ToUPI, &t.PayeeName, &t.BankName, &t.EmailReceivedDate); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		t.Amount = v
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
