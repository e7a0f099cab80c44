package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"spendboard/internal/core"
	"spendboard/internal/source"
)

const (
	genericQueryError = "Error executing query"
	clockLayout       = "15:04:05"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"rupees": core.FormatRupees,
		"cell":   core.FormatCell,
		"comma":  func(n int) string { return humanize.Comma(int64(n)) },
		"add":    func(a, b int) int { return a + b },
		"clock":  formatClock,
	}
}

// formatClock renders the time a transaction email was received, or "-".
func formatClock(t core.Transaction) string {
	if ts, ok := t.ReceivedAt(); ok {
		return ts.Format(clockLayout)
	}
	return "-"
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// queryErrorMessage picks the message shown by the SQL console.
func queryErrorMessage(err error) string {
	var qe *source.QueryError
	switch {
	case errors.As(err, &qe) && strings.TrimSpace(qe.Message) != "":
		return qe.Message
	case errors.Is(err, core.ErrEmptyQuery):
		return "Enter a query to run"
	case errors.Is(err, source.ErrQueryUnsupported):
		return "The query console is not available for this backend"
	default:
		return genericQueryError
	}
}

// isValidationError reports errors caused by bad request parameters.
func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidMonth) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrEmptyQuery)
}

// amount encodes a decimal as a JSON number without going through float.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// statusFor maps a service error to an HTTP status for the JSON API.
func statusFor(err error) int {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrQueryUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}
