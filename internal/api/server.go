// Package api serves the rule service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/TimurManjosov/gorules/internal/auth"
	"github.com/TimurManjosov/gorules/internal/service"
	"github.com/TimurManjosov/gorules/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultKeepAlive      = 25 * time.Second
)

// Options configures the HTTP layer.
type Options struct {
	// AdminAPIKey protects write routes when set.
	AdminAPIKey string
	CORSOrigins []string
	// RateLimitPerIP is the number of requests per minute per client IP;
	// zero disables limiting.
	RateLimitPerIP int
	RequestTimeout time.Duration
	// KeepAlive is the interval of comment frames on the event stream.
	KeepAlive time.Duration
	Logger    zerolog.Logger
}

type Server struct {
	svc  *service.Service
	opts Options
	log  zerolog.Logger
}

func NewServer(svc *service.Service, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	return &Server{svc: svc, opts: opts, log: opts.Logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(requestLogger)
	r.Use(telemetry.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
	}).Handler)
	if s.opts.RateLimitPerIP > 0 {
		r.Use(httprate.Limit(s.opts.RateLimitPerIP, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(RateLimitedError),
		))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/rules", func(r chi.Router) {
		// long-lived; no timeout
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))

			r.Get("/all", s.handleListRules)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/combine", s.handleCombine)
			r.Get("/{id}", s.handleGetRule)
			r.Get("/{id}/export", s.handleExport)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdminKey(s.opts.AdminAPIKey, deny))
				r.Post("/create", s.handleCreateRule)
				r.Post("/modify", s.handleModifyRule)
				r.Put("/{id}", s.handlePutRule)
				r.Delete("/{id}", s.handleDeleteRule)
			})
		})
	})

	return r
}

// requestLogger tags the request logger with the request id and writes one
// access line per request.
func requestLogger(next http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		access.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status == http.StatusUnauthorized {
		UnauthorizedError(w, r, message)
		return
	}
	ForbiddenError(w, r, message)
}
