// Package http serves the bill tracker JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"billtracker/internal/auth"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/middleware/ratelimit"
	"billtracker/internal/middleware/security"
	"billtracker/internal/middleware/trace"
	"billtracker/internal/remote"
	"billtracker/internal/session"
)

// Deps are the collaborators the API is built on.
type Deps struct {
	Users    remote.UserRepository
	Auth     *auth.PasswordAuthenticator
	JWT      *auth.JWTManager
	Sessions *session.Manager
	// Ready reports whether the backing store is reachable.
	Ready    func(context.Context) error
	Limiter  *ratelimit.Limiter
	ClientIP *security.ClientIP
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	Clock    func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	http.Server
	deps   Deps
	logger *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.ClientIP == nil {
		deps.ClientIP, _ = security.NewClientIP()
	}

	s := &Server{deps: deps, logger: deps.Logger.WithComponent(log.ComponentHTTP)}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeInvalidInput, "method not allowed", nil)
	})

	tracer := trace.NewMiddleware(s.deps.Logger, s.deps.Metrics, s.deps.ClientIP.Extract, routeTemplate)
	router.Use(tracer.Middleware)
	router.Use(security.Headers(security.DefaultHeadersConfig()))
	router.Use(s.rejectSuspicious)
	if s.deps.Limiter != nil {
		router.Use(s.deps.Limiter.Middleware(s.deps.ClientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.deps.ClientIP.Extract(r))
			respondError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded, please try again later", nil)
		}))
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.Handle("/auth/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)
	api.Handle("/auth/session", s.authed(s.handleSession)).Methods(http.MethodGet)

	api.Handle("/bills", s.authed(s.handleListBills)).Methods(http.MethodGet)
	api.Handle("/bills", s.authed(s.handleCreateBill)).Methods(http.MethodPost)
	api.Handle("/bills/{id}", s.authed(s.handleUpdateBill)).Methods(http.MethodPut)
	api.Handle("/bills/{id}", s.authed(s.handleDeleteBill)).Methods(http.MethodDelete)
	api.Handle("/bills/{id}/toggle-paid", s.authed(s.handleTogglePaid)).Methods(http.MethodPost)

	api.Handle("/categories", s.authed(s.handleListCategories)).Methods(http.MethodGet)
	api.Handle("/categories", s.authed(s.handleAddCategory)).Methods(http.MethodPost)
	api.Handle("/categories/{name}", s.authed(s.handleRemoveCategory)).Methods(http.MethodDelete)

	api.Handle("/dashboard", s.authed(s.handleDashboard)).Methods(http.MethodGet)

	api.Handle("/notifications", s.authed(s.handleNotifications)).Methods(http.MethodGet)
	api.Handle("/notifications/settings", s.authed(s.handleGetSettings)).Methods(http.MethodGet)
	api.Handle("/notifications/settings", s.authed(s.handleUpdateSettings)).Methods(http.MethodPut)
	api.Handle("/notifications/permission", s.authed(s.handleGetPermission)).Methods(http.MethodGet)
	api.Handle("/notifications/permission", s.authed(s.handleSetPermission)).Methods(http.MethodPut)
	api.Handle("/notifications/enable", s.authed(s.handleEnableDesktop)).Methods(http.MethodPost)

	return router
}

// routeTemplate names a request by its matched route so metrics stay bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if security.Suspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "request rejected", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) now() time.Time {
	return s.deps.Clock()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			respondError(w, http.StatusServiceUnavailable, ErrCodeNotReady, "backend unavailable", nil)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
