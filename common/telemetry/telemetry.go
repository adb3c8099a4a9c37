package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/walrusgate/contentgate/common/logger"
)

// Telemetry serves the pprof handlers on a loopback port
type Telemetry struct {
	log    *logger.Logger
	addr   string
	server *http.Server
	ln     net.Listener
}

// New prepares a pprof endpoint on localhost:pprofPort. Port 0 picks a free
// port.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:  log,
		addr: fmt.Sprintf("localhost:%d", pprofPort),
	}
}

func profilingMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start binds the port and serves in the background
func (t *Telemetry) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("pprof listen on %s: %w", t.addr, err)
	}
	t.ln = ln
	t.server = &http.Server{
		Handler:           profilingMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	t.log.Info("pprof listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, or "" before Start
func (t *Telemetry) Addr() string {
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

func (t *Telemetry) Stop(ctx context.Context) error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(ctx)
}
