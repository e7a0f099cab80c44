package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"spendboard/internal/core"
	applog "spendboard/internal/log"
	"spendboard/internal/source"
)

type dayPoint struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

type payeeSlice struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

type dailyResponse struct {
	Month         string       `json:"month"`
	Count         int          `json:"count"`
	Total         json.Number  `json:"total"`
	ReportedTotal *json.Number `json:"reportedTotal,omitempty"`
	Days          []dayPoint   `json:"days"`
}

type chartsResponse struct {
	Month   string       `json:"month"`
	Count   int          `json:"count"`
	Total   json.Number  `json:"total"`
	ByPayee []payeeSlice `json:"byPayee"`
	Days    []dayPoint   `json:"days"`
}

type topPayeeResponse struct {
	Name  string      `json:"name"`
	Total json.Number `json:"total"`
	Count int         `json:"count"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func toDayPoints(days []core.DayTotal) []dayPoint {
	out := make([]dayPoint, 0, len(days))
	for _, d := range days {
		out = append(out, dayPoint{Date: d.Date, Total: core.ChartValue(d.Total)})
	}
	return out
}

// apiMonth parses the month for JSON endpoints, writing a 400 on failure.
func (s *Server) apiMonth(w http.ResponseWriter, r *http.Request) (core.Month, bool) {
	m, err := ParseMonthParams(r.URL.Query(), s.svc.CurrentMonth())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return core.Month{}, false
	}
	return m, true
}

// apiDates parses the comma-separated dates parameter.
func apiDates(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	dates, err := core.ParseDateList(r.URL.Query().Get("dates"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return dates, true
}

func (s *Server) apiFailed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.events.LogWarn(r.Context(), msg, err, applog.OpRead,
			applog.NewFields().WithComponent(applog.ComponentDashboard))
		writeJSONError(w, status, msg)
		return
	}
	writeJSONError(w, status, err.Error())
}

func requireJSONGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// handleAPIDaily feeds the daily debit line chart.
func (s *Server) handleAPIDaily(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	m, ok := s.apiMonth(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	view, err := s.svc.DailyView(ctx, m)
	if err != nil {
		s.apiFailed(w, r, "daily totals unavailable", err)
		return
	}
	resp := dailyResponse{
		Month: m.String(),
		Count: view.Summary.Count,
		Total: amount(view.Summary.Total),
		Days:  toDayPoints(view.Daily),
	}
	if view.HasReportedTotal {
		reported := amount(view.ReportedTotal)
		resp.ReportedTotal = &reported
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAPICharts feeds the payee pie and daily line on the charts page.
func (s *Server) handleAPICharts(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	m, ok := s.apiMonth(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	view, err := s.svc.ChartsView(ctx, m)
	if err != nil {
		s.apiFailed(w, r, "monthly transactions unavailable", err)
		return
	}
	resp := chartsResponse{
		Month:   m.String(),
		Count:   view.Summary.Count,
		Total:   amount(view.Summary.Total),
		ByPayee: make([]payeeSlice, 0, len(view.ByPayee)),
		Days:    toDayPoints(view.Daily),
	}
	for _, p := range view.ByPayee {
		resp.ByPayee = append(resp.ByPayee, payeeSlice{Name: p.Name, Total: core.ChartValue(p.Total)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAPIPayees ranks one month's payees by debit total.
func (s *Server) handleAPIPayees(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	m, ok := s.apiMonth(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	payees, err := s.svc.MonthPayees(ctx, m)
	if err != nil {
		s.apiFailed(w, r, "payees unavailable", err)
		return
	}
	out := make([]topPayeeResponse, 0, len(payees))
	for _, p := range payees {
		out = append(out, topPayeeResponse{Name: p.Name, Total: amount(p.Total), Count: p.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIDay(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	txns, err := s.svc.DayDetail(ctx, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		s.apiFailed(w, r, "day transactions unavailable", err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleAPIMonthTotal(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	m, ok := s.apiMonth(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	total, err := s.svc.MonthTotal(ctx, m)
	if err != nil {
		s.apiFailed(w, r, "month total unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":  m.Year,
		"month": int(m.Month),
		"total": amount(total),
	})
}

func (s *Server) handleAPITotalsByDates(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	dates, ok := apiDates(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	totals, err := s.svc.TotalsByDates(ctx, dates)
	if err != nil {
		s.apiFailed(w, r, "totals unavailable", err)
		return
	}
	out := make(map[string]json.Number, len(totals))
	for date, total := range totals {
		out[date] = amount(total)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPITotalOnDates(w http.ResponseWriter, r *http.Request) {
	if !requireJSONGet(w, r) {
		return
	}
	dates, ok := apiDates(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	total, err := s.svc.TotalOnDates(ctx, dates)
	if err != nil {
		s.apiFailed(w, r, "total unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dates": dates,
		"total": amount(total),
	})
}

// handleAPIQuery runs a console query from a JSON body {"query": "..."}.
// Backend errors come back as {"message": "..."} with status 400.
func (s *Server) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	sql := parser.Get("query")
	start := time.Now()
	res, err := s.svc.RunQuery(ctx, sql)
	if err != nil {
		var qe *source.QueryError
		switch {
		case errors.As(err, &qe), isValidationError(err):
			writeJSONError(w, http.StatusBadRequest, queryErrorMessage(err))
		case errors.Is(err, source.ErrQueryUnsupported):
			writeJSONError(w, http.StatusNotImplemented, queryErrorMessage(err))
		default:
			s.events.LogError(ctx, "Query failed", err, applog.OpQuery,
				applog.NewFields().WithComponent(applog.ComponentDashboard))
			writeJSONError(w, http.StatusBadGateway, genericQueryError)
		}
		return
	}

	s.events.LogQueryExecuted(ctx, sql, len(res.Rows), len(res.Columns), time.Since(start).Milliseconds())
	resp := queryResponse{Columns: res.Columns, Rows: res.Rows}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	if resp.Rows == nil {
		resp.Rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, resp)
}
