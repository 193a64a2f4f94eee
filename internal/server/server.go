// Package server exposes a Registry and Executor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skosovsky/toolpipe"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to a Registry and Executor.
type Server struct {
	reg         *toolpipe.Registry
	exec        *toolpipe.Executor
	logger      toolpipe.Logger
	provider    string
	gatherer    prometheus.Gatherer
	metricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l toolpipe.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultProvider sets the provider used by /v1/tools/validate when the query omits one.
func WithDefaultProvider(id string) Option {
	return func(s *Server) { s.provider = id }
}

// WithMetrics serves g at path. Without it no metrics route is mounted.
func WithMetrics(path string, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.gatherer = g
	}
}

// New creates a Server. reg and exec must be non-nil.
func New(reg *toolpipe.Registry, exec *toolpipe.Executor, opts ...Option) *Server {
	s := &Server{reg: reg, exec: exec, logger: slog.New(slog.DiscardHandler), provider: toolpipe.ProviderOpenAI}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", s.listTools)
		r.Get("/tools/validate", s.validateTools)
		r.Get("/tools/{name}", s.getTool)
		r.Post("/tool-calls", s.executeToolCalls)
	})
	if s.gatherer != nil {
		r.Handle(s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Config holds listener settings for Run.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves on cfg.Addr until ctx is done, then drains HTTP connections and
// in-flight tool calls within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return s.Serve(ctx, ln, cfg)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg Config) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, cfg.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("http server shutting down")
	httpErr := srv.Shutdown(shutdownCtx)
	execErr := s.exec.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return errors.Join(httpErr, execErr)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
