package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when a PEM bundle holds no certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// Trust is the set of roots a client accepts.
type Trust struct {
	pool  *x509.CertPool
	added int
}

// System starts from the host's roots. Hosts without a readable system
// store start empty.
func System() *Trust {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Trust{pool: pool}
}

// Empty starts with no roots at all.
func Empty() *Trust {
	return &Trust{pool: x509.NewCertPool()}
}

// AppendFile adds every certificate in the PEM file at path.
func (t *Trust) AppendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: %w", err)
	}
	if _, err := t.AppendPEM(data); err != nil {
		return fmt.Errorf("%w (%s)", err, path)
	}
	return nil
}

// AppendPEM adds the CERTIFICATE blocks in data and returns how many were
// added. Other block types, such as a private key bundled in the same
// file, are ignored.
func (t *Trust) AppendPEM(data []byte) (int, error) {
	n := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return n, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		t.pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return 0, ErrNoCertsFound
	}
	t.added += n
	return n, nil
}

// Added reports how many certificates were appended on top of the
// starting roots.
func (t *Trust) Added() int {
	return t.added
}

// CertPool returns the underlying pool.
func (t *Trust) CertPool() *x509.CertPool {
	return t.pool
}

// Config returns a client TLS config verifying servers against t.
func (t *Trust) Config() *tls.Config {
	return &tls.Config{
		RootCAs:    t.pool,
		MinVersion: tls.VersionTLS12,
	}
}

// ClientConfig returns a config trusting the system roots plus the
// certificates in caFile. An empty caFile yields nil so callers keep Go's
// default transport settings.
func ClientConfig(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return nil, nil
	}
	t := System()
	if err := t.AppendFile(caFile); err != nil {
		return nil, err
	}
	return t.Config(), nil
}
