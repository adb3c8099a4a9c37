package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/walrusgate/contentgate/common/logger"
)

const drainTimeout = 30 * time.Second

// Server runs one HTTP handler until its context ends or the process is
// signalled, then drains in-flight requests.
type Server struct {
	name string
	http *http.Server
	log  *logger.Logger
}

// New creates a server listening on port. WriteTimeout allows for unlock
// requests that wait on several chain lookups.
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		name: name,
		log:  log,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the port and serves. A port that cannot be bound is reported
// before anything is served.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen on %s: %w", s.name, s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled or SIGINT/SIGTERM arrives
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "server", s.name, "addr", ln.Addr().String())
		served <- s.http.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", s.name, err)
	case <-ctx.Done():
	}

	s.log.Info("draining connections", "server", s.name, "timeout", drainTimeout)
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := s.http.Shutdown(drainCtx); err != nil {
		s.log.Error("graceful shutdown failed, closing connections", "server", s.name, "error", err)
		if err := s.http.Close(); err != nil {
			return fmt.Errorf("%s: close: %w", s.name, err)
		}
	}
	s.log.Info("server stopped", "server", s.name)
	return nil
}
