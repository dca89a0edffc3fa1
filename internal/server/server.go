// Package server serves the deployment registry over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/deployments"
)

// NetworkResolver looks up a configured network by name.
type NetworkResolver interface {
	Network(name string) (*config.Network, error)
}

// Server exposes read-only registry routes.
type Server struct {
	store    deployments.Store
	networks NetworkResolver
	metrics  http.Handler
	logger   *slog.Logger
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAllowedOrigins sets the CORS origins. Defaults to all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(store deployments.Store, networks NetworkResolver, opts ...Option) *Server {
	s := &Server{
		store:    store,
		networks: networks,
		logger:   slog.Default(),
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with all routes registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondOK(w, map[string]string{"status": "ok"})
	})

	r.Route("/v1/networks/{network}", func(r chi.Router) {
		r.Get("/deployments", s.listDeployments)
		r.Get("/deployments/{name}", s.getDeployment)
		r.Get("/export", s.export)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// network resolves the {network} parameter, writing a 404 when unknown.
func (s *Server) network(w http.ResponseWriter, r *http.Request) (*config.Network, bool) {
	net, err := s.networks.Network(chi.URLParam(r, "network"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_network", err.Error())
		return nil, false
	}
	return net, true
}

// listDeployments handles GET /v1/networks/{network}/deployments
func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	net, ok := s.network(w, r)
	if !ok {
		return
	}

	list, err := s.store.List(r.Context(), net.Name)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []*deployments.Deployment{}
	}
	respondOK(w, list)
}

// getDeployment handles GET /v1/networks/{network}/deployments/{name}
func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	net, ok := s.network(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	d, err := s.store.Get(r.Context(), net.Name, name)
	if errors.Is(err, deployments.ErrInvalidName) {
		respondError(w, http.StatusBadRequest, "invalid_name", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if d == nil {
		respondError(w, http.StatusNotFound, "not_found", "no deployment named "+name+" on "+net.Name)
		return
	}
	respondOK(w, d)
}

// export handles GET /v1/networks/{network}/export
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	net, ok := s.network(w, r)
	if !ok {
		return
	}

	doc, err := deployments.BuildExport(r.Context(), s.store, net.Name, net.ChainID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	respondOK(w, doc)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("registry request failed", slog.String("error", err.Error()))
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("registry server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down registry server")
		return srv.Shutdown(shutdownCtx)
	}
}
