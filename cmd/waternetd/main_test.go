package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/config"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waternet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "waternetd "+Version)

	out, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestJournalInspect(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir, journal.WithCompression(true))
	require.NoError(t, err)
	_, err = j.Append(journal.OpRegisterNode, []byte(`{"id":"R1","kind":"Reservoir"}`))
	require.NoError(t, err)
	_, err = j.Append(journal.OpCreateDMA, []byte(`{"id":"Zone-A"}`))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := execute(t, "journal", "inspect", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "register_node")
	assert.Contains(t, out, "create_dma")
	assert.Contains(t, out, "2 entries")

	out, err = execute(t, "journal", "inspect", "--dir", dir, "--tail", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "register_node")
	assert.Contains(t, out, "1 entries")

	_, err = execute(t, "journal", "inspect", "--dir", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestServeRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "server:\n  port: 0\n")
	_, err = execute(t, "serve", "--config", path)
	assert.Error(t, err)
}

func TestReloadFunc(t *testing.T) {
	eng, err := engine.New(config.Default().EngineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	logger := logging.NewLogger(logging.Options{Level: "info", Format: "json"})

	path := writeConfig(t, `
log:
  level: debug
engine:
  cost_per_m3: 2.5
alerts:
  default_expiry: 2h
  expiry:
    low_pressure: 30m
`)
	reload := reloadFunc(path, eng, nil, logger)
	require.NoError(t, reload())
	assert.Equal(t, 2*time.Hour, eng.Alerts().ExpiryPolicy().Default)
	assert.Equal(t, logging.DebugLevel, logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	assert.Error(t, reload())
	assert.Equal(t, 2*time.Hour, eng.Alerts().ExpiryPolicy().Default, "failed reload keeps the old policy")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServeLifecycle(t *testing.T) {
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
server:
  port: %d
log:
  level: error
journal:
  enabled: true
  dir: %s
`, port, filepath.Join(t.TempDir(), "journal")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, path) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/nodes", "application/json",
		bytes.NewBufferString(`{"id":"R1","kind":"Reservoir","reservoir":{"capacity_m3":5000}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
