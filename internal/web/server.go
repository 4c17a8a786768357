// Package web provides the HTTP server and handlers for the generator UI.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/synthgen/internal/config"
	"github.com/JonMunkholm/synthgen/internal/core"
	"github.com/JonMunkholm/synthgen/internal/history"
	weblog "github.com/JonMunkholm/synthgen/internal/web/middleware"
)

// Deps are the collaborators the server needs.
type Deps struct {
	Registry  *core.Registry
	Generator core.Generator
	Limiter   *core.Limiter // Optional; reported by /api/status
	History   history.Store // Optional
	Logger    *slog.Logger
}

// Server is the HTTP server for the generator UI.
type Server struct {
	cfg      *config.Config
	registry *core.Registry
	gen      core.Generator
	limiter  *core.Limiter
	history  history.Store
	logger   *slog.Logger
	sessions *sessionStore

	rate         *rateLimiter
	generateRate *rateLimiter
	stop         chan struct{}
	stopOnce     sync.Once

	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server and starts its background sweeps. Call Shutdown
// to stop them.
func NewServer(cfg *config.Config, deps Deps) *Server {
	registry := deps.Registry
	if registry == nil {
		registry = core.DefaultRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		gen:      deps.Generator,
		limiter:  deps.Limiter,
		history:  deps.History,
		logger:   logger,
		stop:     make(chan struct{}),
		router:   chi.NewRouter(),
	}
	s.sessions = newSessionStore(cfg.Server.SessionTTL, s.newWorkflow)
	go s.sessions.run(time.Minute, s.stop)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// newWorkflow builds the workflow for a new session. The session doubles as
// the download saver.
func (s *Server) newWorkflow(sess *session) *core.Workflow {
	opts := []core.Option{
		core.WithTimeout(s.cfg.Generator.Timeout),
		core.WithSaver(sess),
		core.WithRenderer(core.Renderer{RowCap: s.cfg.Preview.RowCap}),
		core.WithLogger(s.logger.With("session", sess.id)),
	}
	if s.history != nil {
		opts = append(opts, core.WithRecorder(s.history))
	}
	return core.NewWorkflow(s.registry, s.gen, opts...)
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(weblog.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.rate = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute, s.stop)
		s.router.Use(s.rate.middleware)
		s.generateRate = newRateLimiter(s.cfg.Rate.GenerateLimit, time.Minute, s.stop)
	}
}

// setupRoutes configures all HTTP routes. Every route except generation runs
// under the request timeout; generation is bounded by the workflow deadline.
func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/", s.handleIndex)
		r.Get("/generator", s.handleGenerator)
		r.Post("/generator/model", s.handleSelectModel)
	})

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		if len(s.cfg.Security.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.Security.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type", "HX-Request", "X-Request-Id"},
				ExposedHeaders:   []string{"Content-Disposition"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		// Generation
		if s.generateRate != nil {
			r.With(s.generateRate.middleware).Post("/generate", s.handleGenerate)
		} else {
			r.Post("/generate", s.handleGenerate)
		}

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/validate/file", s.handleValidateFile)
			r.Get("/models", s.handleListModels)
			r.Get("/status", s.handleStatus)
			r.Get("/results/{id}/download", s.handleDownload)
			r.Get("/history", s.handleHistory)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops background sweeps and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'"

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if enableCSP {
				w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
			}

			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a fixed window rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
// Stale visitors are swept until stop is closed.
func newRateLimiter(rate int, window time.Duration, stop <-chan struct{}) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup(stop)
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: now,
		}
		return rl.rate > 0
	}

	// Reset tokens if window has passed
	if now.Sub(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = now
		return rl.rate > 0
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP. RemoteAddr
// has already been resolved by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response for failures that have no richer
// classification.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	slog.Warn("http error",
		"status", status,
		"message", message,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondErrorJSON(w, core.MapError(errors.New(message)), status)
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
