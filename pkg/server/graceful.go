package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// Options tunes the HTTP server
type Options struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          logging.Logger
	// TLSConfig switches the listener to HTTPS when set
	TLSConfig *tls.Config
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 120 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger{}
	}
	return o
}

// GracefulServer wraps an HTTP server with graceful shutdown and
// SIGHUP-triggered configuration reload
type GracefulServer struct {
	server          *http.Server
	logger          logging.Logger
	shutdownTimeout time.Duration
	shutdownCh      chan struct{}
	shutdownOnce    sync.Once
	configReloadFn  ConfigReloadFunc
	configMu        sync.RWMutex
	addr            chan net.Addr
	hup             chan os.Signal
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(addr string, handler http.Handler, opts Options) *GracefulServer {
	opts = opts.withDefaults()
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
			MaxHeaderBytes:    1 << 20,
			TLSConfig:         opts.TLSConfig,
		},
		logger:          opts.Logger.With(logging.Component("http")),
		shutdownTimeout: opts.ShutdownTimeout,
		shutdownCh:      make(chan struct{}),
		addr:            make(chan net.Addr, 1),
	}
}

// Run serves until ctx is cancelled, then drains connections within the
// shutdown timeout. SIGHUP triggers ReloadConfig while running.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	if gs.server.TLSConfig != nil {
		ln = tls.NewListener(ln, gs.server.TLSConfig)
	}
	gs.addr <- ln.Addr()

	hup := gs.hup
	if hup == nil {
		hup = make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
	}

	serveErr := make(chan error, 1)
	go func() {
		gs.logger.Info("http server listening", logging.String("addr", ln.Addr().String()))
		serveErr <- gs.server.Serve(ln)
	}()

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			gs.logger.Info("received SIGHUP, reloading configuration")
			_ = gs.ReloadConfig()
		case <-ctx.Done():
			if err := gs.Shutdown(gs.shutdownTimeout); err != nil {
				return err
			}
			<-serveErr
			return nil
		}
	}
}

// Addr blocks until the listener is bound and returns its address
func (gs *GracefulServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case a := <-gs.addr:
		gs.addr <- a
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown initiates a graceful shutdown
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))
		if err = gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("shutdown did not complete", logging.Error(err))
		} else {
			gs.logger.Info("http server shutdown complete")
		}
	})
	return err
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Warn("configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("configuration reload failed", logging.Error(err))
		return err
	}
	gs.logger.Info("configuration reload complete")
	return nil
}
