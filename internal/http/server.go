package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"emitrack/internal/auth"
	"emitrack/internal/cache"
	applog "emitrack/internal/log"
	"emitrack/internal/middleware/ratelimit"
	"emitrack/internal/middleware/security"
	"emitrack/internal/middleware/trace"
	"emitrack/internal/services"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	defaultRequestTimeout = 30 * time.Second
	cacheCleanupInterval  = 10 * time.Minute
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	EMIs      *services.EMIService
	Ledger    *services.LedgerService
	Verifier  *auth.Verifier
	Store     Pinger
	Summaries *cache.SummaryCache
	Logger    *applog.Logger
}

type Server struct {
	http.Server

	emis     *services.EMIService
	ledger   *services.LedgerService
	verifier *auth.Verifier
	store    Pinger

	logger *applog.Logger
	events *applog.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	securityHeaders  *security.HeadersMiddleware
	traceMiddleware  *trace.Middleware

	summaries    *cache.SummaryCache
	cacheManager *cache.Manager

	appMetrics *appMetrics

	shutdownOnce sync.Once
}

// appMetrics are the counters exposed on /metrics.
type appMetrics struct {
	uptime              time.Time
	emisCreated         int64
	paymentsRecorded    int64
	transactionsCreated int64
	conflicts           int64
}

// NewServer wires middleware and routes, returning a ready-to-run server.
func NewServer(opts Options, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}

	detector := security.NewDetector()
	s := &Server{
		emis:             deps.EMIs,
		ledger:           deps.Ledger,
		verifier:         deps.Verifier,
		store:            deps.Store,
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: detector,
		securityHeaders:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		summaries:        deps.Summaries,
		cacheManager:     cache.NewManager(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	if s.summaries != nil {
		s.cacheManager.Register(s.summaries)
	}
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	s.Server = http.Server{
		Addr:    opts.Addr,
		Handler: s.routes(opts),
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(applog.Middleware(s.logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(chimw.Recoverer)
	r.Use(s.securityHeaders.Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(opts.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError("").Write(w)
	})

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))
		r.Use(s.verifier.Middleware(s.denyUnauthorized))
		r.Use(s.withUserLogger)

		r.Route("/emis", func(r chi.Router) {
			r.Get("/", s.handleListEMIs)
			r.Post("/", s.handleCreateEMI)
			r.Get("/summary", s.handleEMISummary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEMI)
				r.Put("/", s.handleEditEMI)
				r.Delete("/", s.handleDeleteEMI)
				r.Post("/pay", s.handlePayEMI)
				r.Post("/bulk-transactions", s.handleBulkTransactions)
				r.Put("/bulk-update", s.handleBulkUpdate)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTransaction)
				r.Put("/", s.handleUpdateTransaction)
				r.Delete("/", s.handleDeleteTransaction)
			})
		})
	})

	return r
}

func (s *Server) denyUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	s.logger.WarnContext(r.Context(), "Unauthorized request",
		applog.FieldPath, r.URL.Path,
		applog.FieldComponent, applog.ComponentAuth,
		applog.FieldErrorType, applog.ErrorTypeAuth)
	UnauthorizedError(message).Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path,
		applog.FieldComponent, applog.ComponentRateLimit)
	TooManyRequestsError("Rate limit exceeded. Please try again later.").Write(w)
}

// withUserLogger tags the request logger with the authenticated user.
func (s *Server) withUserLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := auth.UserIDFromContext(r.Context()); err == nil {
			logger := applog.FromContext(r.Context()).With(applog.FieldUserID, id)
			r = r.WithContext(applog.WithLogger(r.Context(), logger))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
