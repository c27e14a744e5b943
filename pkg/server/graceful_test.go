package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/goleak"

	wtls "github.com/dd0wney/cluso-waternet/pkg/tls"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGracefulServer_RunServesAndReloads(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", okHandler(), Options{ShutdownTimeout: time.Second})
	gs.hup = make(chan os.Signal, 1)

	var reloads atomic.Int32
	reloaded := make(chan struct{}, 1)
	gs.SetConfigReloadFunc(func() error {
		reloads.Add(1)
		reloaded <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()
	addr, err := gs.Addr(addrCtx)
	if err != nil {
		t.Fatalf("Addr() error = %v", err)
	}

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr.String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	gs.hup <- syscall.SIGHUP
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP did not trigger a reload")
	}
	if gs.IsShuttingDown() {
		t.Error("Server should not be shutting down after SIGHUP")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !gs.IsShuttingDown() {
		t.Error("IsShuttingDown should report true after cancel")
	}
	if reloads.Load() != 1 {
		t.Errorf("reloads = %d, want 1", reloads.Load())
	}
}

func TestGracefulServer_RunListenError(t *testing.T) {
	gs := NewGracefulServer("256.0.0.1:bad", okHandler(), Options{})
	if err := gs.Run(context.Background()); err == nil {
		t.Error("Run() should fail on an invalid address")
	}
}

func TestGracefulServer_ReloadConfig(t *testing.T) {
	gs := NewGracefulServer(":0", okHandler(), Options{})

	if err := gs.ReloadConfig(); err != nil {
		t.Errorf("ReloadConfig() without a func should be a no-op, got %v", err)
	}

	reloadCalled := false
	gs.SetConfigReloadFunc(func() error {
		reloadCalled = true
		return nil
	})
	if err := gs.ReloadConfig(); err != nil {
		t.Errorf("ReloadConfig() error = %v", err)
	}
	if !reloadCalled {
		t.Error("Config reload function was not called")
	}
}

func TestGracefulServer_ReloadConfigWithError(t *testing.T) {
	gs := NewGracefulServer(":0", okHandler(), Options{})

	errBadPolicy := errors.New("alerts.default_expiry: duration 0s is below minimum 1s")
	gs.SetConfigReloadFunc(func() error { return errBadPolicy })

	if err := gs.ReloadConfig(); !errors.Is(err, errBadPolicy) {
		t.Errorf("ReloadConfig() error = %v, want %v", err, errBadPolicy)
	}
}

func TestGracefulServer_ShutdownOnce(t *testing.T) {
	gs := NewGracefulServer(":0", okHandler(), Options{})
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	select {
	case <-gs.ShutdownChannel():
	default:
		t.Error("ShutdownChannel should be closed")
	}
}

func TestGracefulServer_ServesTLS(t *testing.T) {
	tc, _, err := wtls.ServerConfig(wtls.Config{Enabled: true, AutoGenerate: true})
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	gs := NewGracefulServer("127.0.0.1:0", okHandler(), Options{ShutdownTimeout: time.Second, TLSConfig: tc})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()
	addr, err := gs.Addr(addrCtx)
	if err != nil {
		t.Fatalf("Addr() error = %v", err)
	}

	client := &http.Client{Transport: &http.Transport{
		DisableKeepAlives: true,
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test listener
	}}
	resp, err := client.Get("https://" + addr.String() + "/health")
	if err != nil {
		t.Fatalf("GET /health over TLS: %v", err)
	}
	resp.Body.Close()
	if resp.TLS == nil || resp.TLS.Version < tls.VersionTLS12 {
		t.Errorf("expected a TLS 1.2+ connection, got %+v", resp.TLS)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
