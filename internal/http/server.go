package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "spendboard/internal/log"
	"spendboard/internal/middleware/ratelimit"
	"spendboard/internal/middleware/security"
	"spendboard/internal/middleware/trace"
	"spendboard/internal/services"
	appweb "spendboard/web"
)

// ReadyChecker reports whether the transaction backend can serve requests.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. The zero value is usable.
type Options struct {
	// Ready is checked by /readyz; nil means always ready.
	Ready          ReadyChecker
	RateLimit      ratelimit.Config
	TrustedProxies []string
	Logger         *applog.Logger
	// RequestTimeout bounds backend calls made while serving one request.
	RequestTimeout time.Duration
}

type Server struct {
	http.Server
	templates *template.Template
	svc       *services.DashboardService
	ready     ReadyChecker
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	logger    *applog.Logger
	events    *applog.StructuredLogger
	timeout   time.Duration
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, svc *services.DashboardService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentHTTP})
	}
	if opts.RateLimit.RequestsPerMinute == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	s := &Server{
		svc:      svc,
		ready:    opts.Ready,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		logger:   opts.Logger,
		events:   applog.NewStructuredLogger(opts.Logger),
		timeout:  opts.RequestTimeout,
		started:  time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, "/static/", "/healthz")

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	// Pages
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/charts", s.handleCharts)
	mux.HandleFunc("/payees", s.handlePayees)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/refresh", s.handleRefresh)

	// UI partials
	mux.HandleFunc("/ui/day", s.handleDayDetail)

	// JSON API
	mux.HandleFunc("/api/daily", s.handleAPIDaily)
	mux.HandleFunc("/api/charts", s.handleAPICharts)
	mux.HandleFunc("/api/payees", s.handleAPIPayees)
	mux.HandleFunc("/api/day", s.handleAPIDay)
	mux.HandleFunc("/api/totals/month", s.handleAPIMonthTotal)
	mux.HandleFunc("/api/totals/by-dates", s.handleAPITotalsByDates)
	mux.HandleFunc("/api/totals/dates", s.handleAPITotalOnDates)
	mux.HandleFunc("/api/query", s.handleAPIQuery)

	// Operations
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = applog.Middleware(s.logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusTooManyRequests).
			TriggerErrorNotification("Too many requests. Try again in a minute.").
			Write(w)
		return
	}
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requestContext bounds backend calls for a single request.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
