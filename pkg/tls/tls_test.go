package tls

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePair(t *testing.T, validFor time.Duration) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	certFile = filepath.Join(dir, "certs", "server.crt")
	keyFile = filepath.Join(dir, "certs", "server.key")
	require.NoError(t, WriteSelfSigned([]string{"localhost", "127.0.0.1"}, validFor, certFile, keyFile))
	return certFile, keyFile
}

func TestServerConfigDisabled(t *testing.T) {
	tc, r, err := ServerConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, tc)
	assert.Nil(t, r)
}

func TestServerConfigErrors(t *testing.T) {
	certFile, keyFile := writePair(t, time.Hour)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no material", Config{Enabled: true}},
		{"bad version", Config{Enabled: true, AutoGenerate: true, MinVersion: "1.1"}},
		{"missing files", Config{Enabled: true, CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"}},
		{"bad ca", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: keyFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ServerConfig(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestServerConfigFromFiles(t *testing.T) {
	certFile, keyFile := writePair(t, 48*time.Hour)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tc, r, err := ServerConfig(Config{
		Enabled:           true,
		CertFile:          certFile,
		KeyFile:           keyFile,
		CAFile:            certFile,
		RequireClientCert: true,
		MinVersion:        "1.3",
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), tc.MinVersion)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tc.ClientAuth)
	assert.Contains(t, r.Info().DNSNames, "localhost")
	assert.InDelta(t, (48 * time.Hour).Hours(), r.Info().ExpiresIn(time.Now()).Hours(), 0.1)
}

func TestReloaderSwapsCertificate(t *testing.T) {
	certFile, keyFile := writePair(t, time.Hour)
	r, err := NewReloader(certFile, keyFile)
	require.NoError(t, err)
	before := r.Info().NotAfter

	require.NoError(t, WriteSelfSigned([]string{"localhost"}, 72*time.Hour, certFile, keyFile))
	require.NoError(t, r.Reload())
	assert.True(t, r.Info().NotAfter.After(before))

	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o644))
	assert.Error(t, r.Reload())
	cert, err := r.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotNil(t, cert, "failed reload keeps serving the old pair")
}

func TestAutoGeneratedHandshake(t *testing.T) {
	tc, _, err := ServerConfig(Config{Enabled: true, AutoGenerate: true, Hosts: []string{"127.0.0.1"}})
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.TLS = tc
	srv.StartTLS()
	defer srv.Close()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test server
	}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, uint16(tls.VersionTLS13), resp.TLS.Version)
}
