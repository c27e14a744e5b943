// Package tls builds the HTTPS listener configuration for the API server.
package tls

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Config selects the certificate material for the listener
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	// CAFile enables client certificate verification against the given bundle
	CAFile string
	// RequireClientCert rejects clients without a certificate signed by CAFile
	RequireClientCert bool
	// MinVersion is "1.2" or "1.3"
	MinVersion string

	// AutoGenerate creates an in-memory self-signed certificate when no files
	// are configured. Development only.
	AutoGenerate bool
	Hosts        []string
	ValidFor     time.Duration
}

// CertificateInfo holds certificate metadata
type CertificateInfo struct {
	Subject   string
	Issuer    string
	DNSNames  []string
	NotBefore time.Time
	NotAfter  time.Time
}

// ExpiresIn returns the time left before the certificate expires
func (ci CertificateInfo) ExpiresIn(now time.Time) time.Duration {
	return ci.NotAfter.Sub(now)
}

// SecureCipherSuites returns the TLS 1.2 suites offered alongside the
// fixed TLS 1.3 set
func SecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported TLS version %q", v)
}

// ServerConfig builds a listener config. It returns nil when TLS is
// disabled. The returned Reloader serves the certificate and can re-read
// it from disk without restarting the listener.
func ServerConfig(cfg Config) (*tls.Config, *Reloader, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	minVersion, err := parseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}

	var r *Reloader
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		r, err = NewReloader(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, nil, err
		}
	case cfg.AutoGenerate:
		certPEM, keyPEM, err := GenerateSelfSigned(cfg.Hosts, cfg.ValidFor)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse generated certificate: %w", err)
		}
		r = staticReloader(cert)
	default:
		return nil, nil, fmt.Errorf("TLS enabled but no certificate provided and auto-generation disabled")
	}

	tc := &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     minVersion,
		CipherSuites:   SecureCipherSuites(),
	}
	if cfg.CAFile != "" {
		pool, err := LoadCAPool(cfg.CAFile)
		if err != nil {
			return nil, nil, err
		}
		tc.ClientCAs = pool
		tc.ClientAuth = tls.VerifyClientCertIfGiven
		if cfg.RequireClientCert {
			tc.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}
	return tc, r, nil
}
