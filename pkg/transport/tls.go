package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TLS constants.
const (
	// ALPNProtocol is the ALPN identifier negotiated on every TLS link.
	ALPNProtocol = "carlink/1"

	// DefaultPort is the default head-unit listen port.
	DefaultPort = 12345
)

// TLSConfig holds the certificate material for a head-unit endpoint.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	Certificate tls.Certificate

	// RootCAs is the pool of trusted CA certificates, used by clients to
	// verify the head unit.
	RootCAs *x509.CertPool

	// ClientCAs is the pool of CA certificates for client authentication.
	// Only used by the head unit (server) when mutual TLS is required.
	ClientCAs *x509.CertPool

	// RequireClientCert enables mutual TLS on the server side.
	RequireClientCert bool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool
}

// NewServerTLSConfig creates a TLS configuration for the head unit (server).
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	tlsConfig := &tls.Config{
		// TLS 1.3 only - no fallback
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,

		Certificates: []tls.Certificate{cfg.Certificate},

		// ALPN protocol
		NextProtos: []string{ALPNProtocol},

		// Curve preferences for key exchange
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		// Session tickets disabled (no resumption)
		SessionTicketsDisabled: true,
	}

	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = cfg.ClientCAs
	}

	// For testing only
	if cfg.InsecureSkipVerify {
		tlsConfig.ClientAuth = tls.RequestClientCert
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for a device (client)
// connecting to the head unit.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		// TLS 1.3 only - no fallback
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,

		RootCAs:    cfg.RootCAs,
		ServerName: cfg.ServerName,

		// ALPN protocol
		NextProtos: []string{ALPNProtocol},

		// Curve preferences for key exchange
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		// Session tickets disabled (no resumption)
		SessionTicketsDisabled: true,

		// For testing only
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	return tlsConfig, nil
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

// VerifyConnection performs standard link verification after the handshake.
func VerifyConnection(state tls.ConnectionState) error {
	if err := VerifyTLS13(state); err != nil {
		return err
	}
	return VerifyALPN(state)
}
