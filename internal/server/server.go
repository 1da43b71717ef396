// Package server exposes wizard sessions and the generic table operations
// over HTTP. Routes are mounted from the same table the OpenAPI document is
// generated from.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	formwizard "github.com/goliatone/go-formwizard"
	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/internal/openapi"
	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

const (
	// SessionHeader carries the wizard id for clients without cookies.
	SessionHeader = "X-Wizard-Session"

	sessionValueKey   = "wizard"
	defaultCookieName = "formwizard"
	reloadDebounce    = 200 * time.Millisecond
)

// Config holds the server dependencies and settings.
type Config struct {
	Addr            string
	Bundle          formwizard.Bundle
	Collaborator    persist.Collaborator
	SessionSecret   string
	CookieName      string
	SecureCookie    bool
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration
	// ConfigDir is reloaded on change when Watch is set.
	ConfigDir string
	Watch     bool
	Sanitize  bool
	Version   string
	Logger    *slog.Logger
}

// schemaSetter is implemented by collaborators that validate identifiers
// against the schema and must follow reloads.
type schemaSetter interface {
	SetSchema(cfg schema.Config)
}

type state struct {
	bundle formwizard.Bundle
	doc    *openapi.Document
}

// Server is the HTTP front of the wizard.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
	cookies  *sessions.CookieStore
	current  atomic.Pointer[state]
	router   chi.Router
}

// New validates cfg, builds the OpenAPI document for the bundle and mounts
// every route.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Collaborator == nil {
		return nil, errors.New("server: collaborator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		cfg.Logger.Warn("server: no session secret configured, cookies will not survive a restart")
	}
	cookies := sessions.NewCookieStore(secret)
	cookies.Options.Path = "/"
	cookies.Options.HttpOnly = true
	cookies.Options.SameSite = http.SameSiteLaxMode
	cookies.Options.Secure = cfg.SecureCookie
	if cfg.SessionTTL > 0 {
		cookies.MaxAge(int(cfg.SessionTTL / time.Second))
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(cfg.SessionTTL),
		cookies:  cookies,
	}
	if err := s.Reload(ctx, cfg.Bundle); err != nil {
		return nil, err
	}
	router, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.router = router
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry exposes the live sessions.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Bundle returns the configuration new sessions are started with.
func (s *Server) Bundle() formwizard.Bundle {
	return s.current.Load().bundle
}

// Document returns the OpenAPI document of the current configuration.
func (s *Server) Document() *openapi.Document {
	return s.current.Load().doc
}

// Reload swaps the configuration. Running sessions keep the configuration
// they were started with.
func (s *Server) Reload(ctx context.Context, bundle formwizard.Bundle) error {
	opts := []openapi.Option{}
	if s.cfg.Version != "" {
		opts = append(opts, openapi.WithVersion(s.cfg.Version))
	}
	doc, err := openapi.Build(ctx, bundle.Schema, opts...)
	if err != nil {
		return fmt.Errorf("server: build document: %w", err)
	}
	if setter, ok := s.cfg.Collaborator.(schemaSetter); ok {
		setter.SetSchema(bundle.Schema)
	}
	s.current.Store(&state{bundle: bundle, doc: doc})
	return nil
}

func (s *Server) routes() (chi.Router, error) {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
	)

	endpoints := s.endpoints()
	for _, route := range openapi.Routes() {
		fn, ok := endpoints[route.OperationID]
		if !ok {
			return nil, fmt.Errorf("server: no handler for operation %s", route.OperationID)
		}
		r.Method(route.Method, route.Path, s.mount(route, fn))
	}
	return r, nil
}

// endpoint handles one operation. A nil response with no error writes an
// empty body with the route's status.
type endpoint func(w http.ResponseWriter, r *http.Request) (any, error)

func (s *Server) mount(route openapi.Route, fn endpoint) http.HandlerFunc {
	status := route.StatusOrDefault()
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(w, r)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Serve listens on cfg.Addr until ctx is cancelled, sweeping expired
// sessions and reloading configuration when watching.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server: listening", "addr", s.cfg.Addr)
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return s.registry.Run(egctx, s.cfg.SweepInterval)
	})

	if s.cfg.Watch && s.cfg.ConfigDir != "" {
		eg.Go(func() error {
			return config.Watch(egctx, s.cfg.ConfigDir, reloadDebounce, s.logger, func() {
				s.reloadDir(egctx)
			})
		})
	}

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Debug("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// reloadDir loads the watched directory and applies it when it is
// consistent. A broken edit keeps the previous configuration.
func (s *Server) reloadDir(ctx context.Context) {
	bundle, err := formwizard.LoadDir(s.cfg.ConfigDir)
	if err != nil {
		s.logger.Warn("server: config reload rejected", "dir", s.cfg.ConfigDir, "error", err)
		return
	}
	if err := s.Reload(ctx, bundle); err != nil {
		s.logger.Warn("server: config reload failed", "error", err)
		return
	}
	s.logger.Info("server: configuration reloaded", "dir", s.cfg.ConfigDir, "tables", len(bundle.Schema.Tables))
}
