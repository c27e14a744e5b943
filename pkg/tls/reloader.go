package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
)

// Reloader holds the serving certificate. Reload swaps in a fresh pair from
// disk; handshakes already in progress keep the old one.
type Reloader struct {
	certFile string
	keyFile  string

	mu   sync.RWMutex
	cert *tls.Certificate
	info CertificateInfo
}

// NewReloader loads certFile and keyFile
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{certFile: certFile, keyFile: keyFile}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func staticReloader(cert tls.Certificate) *Reloader {
	r := &Reloader{}
	r.set(&cert)
	return r
}

// Reload re-reads the key pair. A failed reload keeps the current certificate.
func (r *Reloader) Reload() error {
	if r.certFile == "" {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return r.set(&cert)
}

func (r *Reloader) set(cert *tls.Certificate) error {
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = leaf
	}
	r.mu.Lock()
	r.cert = cert
	r.info = describe(leaf)
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Info describes the certificate currently served
func (r *Reloader) Info() CertificateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}
