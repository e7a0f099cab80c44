package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"spendboard/internal/core"
	"spendboard/internal/services"
)

func TestParseMonthParams(t *testing.T) {
	fallback := core.Month{Year: 2025, Month: time.June}

	tests := []struct {
		name    string
		query   url.Values
		want    core.Month
		wantErr bool
	}{
		{
			name:  "no parameters uses fallback",
			query: url.Values{},
			want:  fallback,
		},
		{
			name:  "yyyy-MM month",
			query: url.Values{"month": {"2024-02"}},
			want:  core.Month{Year: 2024, Month: time.February},
		},
		{
			name:  "numeric year and month",
			query: url.Values{"year": {"2023"}, "month": {"11"}},
			want:  core.Month{Year: 2023, Month: time.November},
		},
		{
			name:  "only year keeps fallback month",
			query: url.Values{"year": {"2022"}},
			want:  core.Month{Year: 2022, Month: time.June},
		},
		{
			name:  "only numeric month keeps fallback year",
			query: url.Values{"month": {"1"}},
			want:  core.Month{Year: 2025, Month: time.January},
		},
		{
			name:    "month out of range",
			query:   url.Values{"month": {"2025-13"}},
			wantErr: true,
		},
		{
			name:    "non-numeric year",
			query:   url.Values{"year": {"twenty"}, "month": {"3"}},
			wantErr: true,
		},
		{
			name:    "non-numeric month",
			query:   url.Values{"month": {"march"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, fallback)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				if !errors.Is(err, core.ErrInvalidMonth) {
					t.Errorf("error %v should wrap ErrInvalidMonth", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMonthParams() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePageParams(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantPage int
		wantSize int
	}{
		{"defaults", url.Values{}, 0, services.RecentPageSize},
		{"explicit", url.Values{"page": {"3"}, "size": {"25"}}, 3, 25},
		{"negative page ignored", url.Values{"page": {"-1"}}, 0, services.RecentPageSize},
		{"zero size ignored", url.Values{"size": {"0"}}, 0, services.RecentPageSize},
		{"garbage ignored", url.Values{"page": {"x"}, "size": {"y"}}, 0, services.RecentPageSize},
		{"size clamped", url.Values{"size": {"5000"}}, 0, maxPageSize},
		{"page clamped", url.Values{"page": {"1844674407370955161"}, "size": {"10"}}, maxPage, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := ParsePageParams(tt.query)
			if page != tt.wantPage || size != tt.wantSize {
				t.Errorf("ParsePageParams() = (%d, %d), want (%d, %d)", page, size, tt.wantPage, tt.wantSize)
			}
		})
	}
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "json body",
			body: `{"query": "select 1"}`,
			want: "select 1",
		},
		{
			name: "form body",
			body: "query=select+payee+from+t",
			want: "select payee from t",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
		{
			name: "json non-string value",
			body: `{"query": 42}`,
			want: "42",
		},
		{
			name:    "malformed json",
			body:    `{"query": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tt.body))
			parser := NewRequestBodyParser(httptest.NewRecorder(), req)

			err := parser.Parse()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := parser.Get("query"); got != tt.want {
				t.Errorf("Get(query) = %q, want %q", got, tt.want)
			}
			if got := parser.Get("missing"); got != "" {
				t.Errorf("Get(missing) = %q, want empty", got)
			}
		})
	}
}

func TestRequestBodyParserRejectsOversizedBody(t *testing.T) {
	body := "query=" + strings.Repeat("a", maxQueryBody+1)
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := parser.Parse(); err == nil {
		t.Error("expected an error for an oversized body")
	}
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if resp := RequireGET(req); resp != nil {
		t.Error("GET should be allowed")
	}
	if resp := RequireGET(httptest.NewRequest(http.MethodHead, "/", nil)); resp != nil {
		t.Error("HEAD should be allowed")
	}

	resp := RequirePOST(req)
	if resp == nil {
		t.Fatal("GET should be rejected by RequirePOST")
	}
	w := httptest.NewRecorder()
	resp.Write(w)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if got := w.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q", got)
	}

	w = httptest.NewRecorder()
	RequireMethod(httptest.NewRequest(http.MethodDelete, "/", nil), http.MethodGet, http.MethodPost).Write(w)
	if got := w.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q", got)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  select 1  ", "select 1"},
		{"select\x00 1", "select 1"},
		{"select\n\t1", "select\n\t1"},
		{"\x07\x1b", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
