// Package server exposes a vault over HTTP on a TCP address or a unix socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/mayanks4367/zero-trust/internal/metrics"
	"github.com/mayanks4367/zero-trust/internal/misc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Config holds the listener settings. Addr wins over Socket when both are set.
type Config struct {
	Addr   string `yaml:"addr" mapstructure:"addr"`
	Socket string `yaml:"socket" mapstructure:"socket"`
}

// Options configures a Server.
type Options struct {
	Logger zerolog.Logger

	// Registry is served on /metrics when set.
	Registry *prometheus.Registry
}

// Server maps HTTP requests onto a zerotrust.Service.
type Server struct {
	svc     zerotrust.Service
	log     zerolog.Logger
	ready   atomic.Bool
	handler http.Handler
}

// New builds the route table for svc. The server starts not ready.
func New(svc zerotrust.Service, options Options) *Server {
	s := &Server{svc: svc, log: options.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/unlock", s.handleUnlock)
	mux.HandleFunc("POST /v1/control", s.handleControl)
	mux.HandleFunc("GET /v1/secret", s.handleRead)
	mux.HandleFunc("PUT /v1/secret", s.handleWrite)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if options.Registry != nil {
		mux.Handle("GET /metrics", metrics.Handler(options.Registry))
	}

	s.handler = RequestID(Logger(options.Logger)(mux))
	return s
}

// Handler returns the root handler with middlewares applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetReady marks readiness state.
func (s *Server) SetReady(v bool) {
	s.ready.Store(v)
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("vault api listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Listen opens the listener described by cfg. A unix socket is created with
// owner-only permissions after removing a stale socket file.
func Listen(cfg Config) (net.Listener, error) {
	if cfg.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
		}
		return ln, nil
	}
	if cfg.Socket == "" {
		return nil, fmt.Errorf("either server.addr or server.socket is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Socket), misc.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(cfg.Socket); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Socket, err)
	}
	if err = os.Chmod(cfg.Socket, misc.FilePermissions); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return ln, nil
}
