package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"commentdm/internal/config"
	"commentdm/internal/history"
	"commentdm/internal/replier"
	"commentdm/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Rate limiting - requests per minute per IP
	GlobalRateLimit = 600
	AdminRateLimit  = 30
)

// Server represents the HTTP server
type Server struct {
	Config    *config.Config
	Store     *store.Store
	Processor *replier.Processor
	History   *history.History
	Logger    *slog.Logger
	TestMode  bool

	batchWg sync.WaitGroup // Tracks in-flight webhook batches

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new server instance. hist may be nil when the activity
// archive is disabled.
func NewServer(cfg *config.Config, st *store.Store, proc *replier.Processor, hist *history.History, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Config:    cfg,
		Store:     st,
		Processor: proc,
		History:   hist,
		Logger:    logger,
		TestMode:  testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware. Only the path is logged; the admin password may
	// travel in the query string.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	// Routes
	r.Get("/", s.HandleIndex)
	r.Get("/health", s.HandleHealth)
	r.Get("/webhook", s.HandleVerify)
	r.Post("/webhook", s.HandleWebhook)

	// Admin routes with password check and stricter rate limit
	r.Group(func(r chi.Router) {
		if !s.TestMode {
			r.Use(NewAdminRateLimitMiddleware(AdminRateLimit, s.Logger))
		}
		r.Use(s.RequireAdmin)

		r.Get("/admin", s.HandleDashboard)
		r.Post("/admin/save", s.HandleSave)
		r.Post("/admin/reset", s.HandleReset)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops. A server stopped
// through Shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WaitForBatches waits for all in-flight webhook batches to complete.
// This is primarily useful for testing.
func (s *Server) WaitForBatches() {
	s.batchWg.Wait()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	var errs []error

	// Stop accepting requests
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// Wait for in-flight batches
	s.batchWg.Wait()

	// Close history database connection
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
