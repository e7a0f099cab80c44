package http

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"spendboard/internal/core"
	applog "spendboard/internal/log"
	"spendboard/internal/source"
)

// pageData is the envelope every full page template receives.
type pageData struct {
	Title  string
	Active string
	Data   any
}

// monthNav drives the month picker shared by the dashboard and charts.
type monthNav struct {
	Month string
	Label string
	Prev  string
	Next  string
}

func newMonthNav(m core.Month) monthNav {
	return monthNav{
		Month: m.String(),
		Label: time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006"),
		Prev:  m.Prev().String(),
		Next:  m.Next().String(),
	}
}

type dashboardData struct {
	Nav         monthNav
	Error       string
	Total       string
	Count       int
	Days        int
	Reported    string
	HasReported bool
}

type chartsData struct {
	Nav    monthNav
	Error  string
	Total  string
	Count  int
	Payees []payeeRow
}

type payeeRow struct {
	Name  string
	Total string
}

type dayDetailData struct {
	Date  string
	Error string
	Rows  []core.Transaction
	Total string
}

type payeesData struct {
	Search string
	Error  string
	Payees []core.TopPayee
}

type transactionsData struct {
	Error    string
	Page     source.Page
	HasPrev  bool
	HasNext  bool
	PrevPage int
	NextPage int
}

type queryData struct {
	SQL      string
	Ran      bool
	Error    string
	Result   core.QueryResult
	Duration string
}

// render executes a named template into a buffer first so a failing
// template never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, applog.OpRender,
			applog.NewFields().WithComponent(applog.ComponentTemplate))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// pageMonth resolves the requested month. Bad input falls back to the
// current month, as the month picker can't produce it.
func (s *Server) pageMonth(r *http.Request) core.Month {
	current := s.svc.CurrentMonth()
	m, err := ParseMonthParams(r.URL.Query(), current)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Invalid month parameter",
			applog.FieldQuery, r.URL.RawQuery,
			applog.FieldError, err)
		return current
	}
	return m
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	m := s.pageMonth(r)
	data := dashboardData{Nav: newMonthNav(m)}
	view, err := s.svc.DailyView(ctx, m)
	if err != nil {
		s.events.LogWarn(ctx, "Daily view unavailable", err, applog.OpRead,
			applog.NewFields().WithMonth(m.String()).WithComponent(applog.ComponentDashboard))
		data.Error = "Transactions could not be loaded."
	} else {
		data.Total = core.FormatRupees(view.Summary.Total)
		data.Count = view.Summary.Count
		data.Days = len(view.Daily)
		if view.HasReportedTotal {
			data.HasReported = true
			data.Reported = core.FormatRupees(view.ReportedTotal)
		}
	}

	s.render(w, r, "dashboard_page", pageData{Title: "Daily spending", Active: "dashboard", Data: data})
}

// handleDayDetail renders the table shown when hovering a day on the chart.
func (s *Server) handleDayDetail(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if err := core.ValidateDate(date); err != nil {
		BadRequestError("Invalid date").Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	data := dayDetailData{Date: date}
	rows, err := s.svc.DayDetail(ctx, date)
	if err != nil {
		s.events.LogWarn(ctx, "Day detail unavailable", err, applog.OpRead,
			applog.NewFields().WithComponent(applog.ComponentDashboard))
		data.Error = "Transactions could not be loaded."
	} else {
		data.Rows = rows
		data.Total = core.FormatRupees(core.Summarize(rows).Total)
	}

	s.render(w, r, "day_detail", data)
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	m := s.pageMonth(r)
	data := chartsData{Nav: newMonthNav(m)}
	view, err := s.svc.ChartsView(ctx, m)
	if err != nil {
		s.events.LogWarn(ctx, "Charts view unavailable", err, applog.OpRead,
			applog.NewFields().WithMonth(m.String()).WithComponent(applog.ComponentDashboard))
		data.Error = "Transactions could not be loaded."
	} else {
		data.Total = core.FormatRupees(view.Summary.Total)
		data.Count = view.Summary.Count
		for _, p := range view.ByPayee {
			data.Payees = append(data.Payees, payeeRow{Name: p.Name, Total: core.FormatRupees(p.Total)})
		}
	}

	s.render(w, r, "charts_page", pageData{Title: "Monthly transactions", Active: "charts", Data: data})
}

// handlePayees renders the top payees page. Searches issued by htmx get
// only the list partial back.
func (s *Server) handlePayees(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	search := sanitizeInput(r.URL.Query().Get("q"))
	data := payeesData{Search: search}
	payees, err := s.svc.TopPayees(ctx, search)
	if err != nil {
		s.events.LogWarn(ctx, "Top payees unavailable", err, applog.OpList,
			applog.NewFields().WithComponent(applog.ComponentDashboard))
		data.Error = "Payees could not be loaded."
	} else {
		data.Payees = payees
	}

	if isHTMX(r) {
		s.render(w, r, "payee_list", data)
		return
	}
	s.render(w, r, "payees_page", pageData{Title: "Top payees", Active: "payees", Data: data})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	page, size := ParsePageParams(r.URL.Query())
	data := transactionsData{}
	p, err := s.svc.Recent(ctx, page, size)
	if err != nil {
		s.events.LogWarn(ctx, "Transactions unavailable", err, applog.OpList,
			applog.NewFields().WithComponent(applog.ComponentDashboard))
		data.Error = "Transactions could not be loaded."
	} else {
		data.Page = p
		data.HasPrev = p.Number > 0
		data.HasNext = !p.Last()
		data.PrevPage = p.Number - 1
		data.NextPage = p.Number + 1
	}

	s.render(w, r, "transactions_page", pageData{Title: "Transactions", Active: "transactions", Data: data})
}

// handleQuery serves the SQL console. GET shows the editor; POST runs the
// query and renders the result table, or only the table for htmx.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}

	if r.Method != http.MethodPost {
		s.render(w, r, "query_page", pageData{Title: "SQL query", Active: "query", Data: queryData{}})
		return
	}

	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	data := s.runQuery(r, parser.Get("query"))

	if isHTMX(r) {
		resp := NewHTMXResponse()
		if data.Error != "" {
			resp.TriggerErrorNotification(data.Error)
		} else {
			resp.TriggerQueryExecuted(len(data.Result.Rows), len(data.Result.Columns))
		}
		if s.templates == nil {
			InternalServerError("templates not loaded").Write(w)
			return
		}
		var buf bytes.Buffer
		if err := s.templates.ExecuteTemplate(&buf, "query_result", data); err != nil {
			s.events.LogError(r.Context(), "Template execution failed", err, applog.OpRender,
				applog.NewFields().WithComponent(applog.ComponentTemplate))
			InternalServerError("template error").Write(w)
			return
		}
		resp.BodyHTML(buf.String()).Write(w)
		return
	}
	s.render(w, r, "query_page", pageData{Title: "SQL query", Active: "query", Data: data})
}

func (s *Server) runQuery(r *http.Request, sql string) queryData {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data := queryData{SQL: sql, Ran: true}
	start := time.Now()
	res, err := s.svc.RunQuery(ctx, sql)
	elapsed := time.Since(start)
	if err != nil {
		var qe *source.QueryError
		if !errors.As(err, &qe) && !isValidationError(err) {
			s.events.LogError(ctx, "Query failed", err, applog.OpQuery,
				applog.NewFields().WithComponent(applog.ComponentDashboard))
		}
		data.Error = queryErrorMessage(err)
		return data
	}

	s.events.LogQueryExecuted(ctx, sql, len(res.Rows), len(res.Columns), elapsed.Milliseconds())
	data.Result = res
	data.Duration = elapsed.Round(time.Millisecond).String()
	return data
}

// handleRefresh drops cached listings so every panel refetches.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	s.svc.Invalidate()
	s.logger.InfoContext(r.Context(), "Caches invalidated", applog.FieldOperation, applog.OpRefresh)

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerDataRefreshed().
			TriggerSuccessNotification("Data refreshed").
			Refresh().
			Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
