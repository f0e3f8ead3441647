package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

const (
	// ALPNProtocol is the ALPN identifier negotiated over TLS.
	ALPNProtocol = "msgslot/1"

	// DefaultPort is the default daemon port.
	DefaultPort = 7380
)

// TLSConfig names the files a TLS endpoint is built from.
type TLSConfig struct {
	// CertFile and KeyFile hold the PEM certificate and key of a server.
	CertFile string
	KeyFile  string

	// CAFile is a PEM bundle of roots a client trusts. Empty means the
	// system pool.
	CAFile string

	// ServerName overrides the name a client verifies.
	ServerName string

	// InsecureSkipVerify disables server certificate verification.
	// Only for testing.
	InsecureSkipVerify bool
}

// Enabled reports whether TLS is configured at all.
func (c *TLSConfig) Enabled() bool {
	return c != nil && (c.CertFile != "" || c.CAFile != "" || c.InsecureSkipVerify)
}

// LoadServerTLSConfig loads the certificate pair and returns a server config.
func LoadServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("server certificate and key files are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return NewServerTLSConfig(cert), nil
}

// NewServerTLSConfig creates a TLS configuration for the daemon.
func NewServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		SessionTicketsDisabled: true,
	}
}

// LoadClientTLSConfig returns a client config, reading the CA bundle if set.
func LoadClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		cfg = &TLSConfig{}
	}
	var roots *x509.CertPool
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
	}
	return NewClientTLSConfig(roots, cfg.ServerName, cfg.InsecureSkipVerify), nil
}

// NewClientTLSConfig creates a TLS configuration for a client. A nil
// roots pool means the system pool.
func NewClientTLSConfig(roots *x509.CertPool, serverName string, insecure bool) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
		RootCAs:    roots,
		ServerName: serverName,
		NextProtos: []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		SessionTicketsDisabled: true,
		InsecureSkipVerify:     insecure,
	}
}

// VerifyTLS13 checks that a TLS connection is using TLS 1.3.
func VerifyTLS13(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("TLS version %x is not TLS 1.3 (0x0304)", state.Version)
	}
	return nil
}

// VerifyALPN checks that the negotiated ALPN protocol is correct.
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}

// VerifyConnection checks the negotiated version and protocol.
func VerifyConnection(state tls.ConnectionState) error {
	if err := VerifyTLS13(state); err != nil {
		return err
	}
	return VerifyALPN(state)
}
