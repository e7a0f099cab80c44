// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spendboard/internal/core"
	"spendboard/internal/services"
)

const (
	maxPageSize  = 200
	maxPage      = math.MaxInt / maxPageSize
	maxQueryBody = 64 << 10
)

// ParseMonthParams reads the month to show from query parameters. It accepts
// month=yyyy-MM, or numeric year and month. Absent parameters yield fallback.
func ParseMonthParams(query url.Values, fallback core.Month) (core.Month, error) {
	monthStr := strings.TrimSpace(query.Get("month"))
	yearStr := strings.TrimSpace(query.Get("year"))

	if monthStr == "" && yearStr == "" {
		return fallback, nil
	}
	if strings.Contains(monthStr, "-") {
		return core.ParseMonth(monthStr)
	}

	year := fallback.Year
	if yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return core.Month{}, fmt.Errorf("%w: year %q", core.ErrInvalidMonth, yearStr)
		}
		year = y
	}
	month := int(fallback.Month)
	if monthStr != "" {
		m, err := strconv.Atoi(monthStr)
		if err != nil {
			return core.Month{}, fmt.Errorf("%w: month %q", core.ErrInvalidMonth, monthStr)
		}
		month = m
	}
	return core.NewMonth(year, month)
}

// ParsePageParams extracts a zero-based page and a bounded page size.
// Invalid values fall back to the first page of the default size; page is
// capped so page*size always fits in an int.
func ParsePageParams(query url.Values) (page, size int) {
	size = services.RecentPageSize
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("page"))); err == nil && v >= 0 {
		page = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("size"))); err == nil && v > 0 {
		size = v
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page > maxPage {
		page = maxPage
	}
	return page, size
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxQueryBody bytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBody))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireGET allows GET and HEAD.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}
