package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
)

const (
	defaultMaxRetries = 2
	defaultBackoff    = 250 * time.Millisecond
	maxErrorBody      = 4 << 10
)

// Ensure interface conformance
var _ source.Source = (*Client)(nil)

// Client talks to the transactions REST API.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	maxRetries int
	backoff    time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets how many times a failed GET is retried and the initial
// backoff between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

// New creates a client for the API rooted at baseURL (e.g.
// http://localhost:8090). Endpoints live under /transactions.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		http:       newHTTPClientWithPooling(timeout),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and bounded timeouts for the transactions API.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transactions api: status %d", e.Code)
	}
	return fmt.Sprintf("transactions api: status %d: %s", e.Code, e.Body)
}

func (c *Client) ListTransactions(ctx context.Context, q source.Query) (source.Page, error) {
	params := url.Values{}
	setIfNotEmpty(params, "fromDate", q.FromDate)
	setIfNotEmpty(params, "toDate", q.ToDate)
	setIfNotEmpty(params, "type", q.Type)
	params.Set("page", strconv.Itoa(q.Page))
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}

	var page source.Page
	if err := c.getJSON(ctx, "", params, &page); err != nil {
		return source.Page{}, fmt.Errorf("list transactions: %w", err)
	}
	return page, nil
}

func (c *Client) TransactionsForDay(ctx context.Context, date string) ([]core.Transaction, error) {
	var out []core.Transaction
	if err := c.getJSON(ctx, "/day", url.Values{"date": {date}}, &out); err != nil {
		return nil, fmt.Errorf("transactions for day %s: %w", date, err)
	}
	return out, nil
}

func (c *Client) TotalSpentInMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	params := url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}}
	var total decimal.Decimal
	if err := c.getJSON(ctx, "/total/month", params, &total); err != nil {
		return decimal.Zero, fmt.Errorf("total for %d-%02d: %w", year, month, err)
	}
	return total, nil
}

func (c *Client) TotalByDates(ctx context.Context, dates []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	if err := c.getJSON(ctx, "/total/by-dates", url.Values{"dates": {strings.Join(dates, ",")}}, &out); err != nil {
		return nil, fmt.Errorf("totals by dates: %w", err)
	}
	return out, nil
}

func (c *Client) TotalSpentOnDates(ctx context.Context, dates []string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := c.getJSON(ctx, "/total/dates", url.Values{"dates": {strings.Join(dates, ",")}}, &total); err != nil {
		return decimal.Zero, fmt.Errorf("total on dates: %w", err)
	}
	return total, nil
}

// RunQuery posts the SQL text to /transactions/run. A failed query surfaces
// the backend's message as a *source.QueryError.
func (c *Client) RunQuery(ctx context.Context, sql string) (core.QueryResult, error) {
	body, err := json.Marshal(map[string]string{"query": sql})
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/run", nil), bytes.NewReader(body))
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("run query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			return core.QueryResult{}, &source.QueryError{Message: payload.Message}
		}
		return core.QueryResult{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	result, err := decodeRows(resp.Body)
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("decode query result: %w", err)
	}
	return result, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/transactions" + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// getJSON performs a GET, retrying network failures and 5xx responses with
// exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	target := c.endpoint(path, params)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			slog.DebugContext(ctx, "Retrying transactions API request", "url", target, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := c.doGet(ctx, target, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) doGet(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func setIfNotEmpty(v url.Values, key, value string) {
	if strings.TrimSpace(value) != "" {
		v.Set(key, value)
	}
}
