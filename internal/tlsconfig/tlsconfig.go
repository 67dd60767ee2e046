// Package tlsconfig builds mutual TLS configurations for the shell and the
// server when they talk over TCP.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds the certificate material for one side of an mTLS connection.
type Config struct {
	CertPath   string
	KeyPath    string
	CACertPath string
	ServerName string
	Server     bool
}

// Enabled reports whether any certificate material was supplied.
func (c *Config) Enabled() bool {
	return c.CertPath != "" || c.KeyPath != "" || c.CACertPath != ""
}

// Validate checks that all certificate paths are set and exist.
func (c *Config) Validate() error {
	for name, path := range map[string]string{
		"cert-path":    c.CertPath,
		"key-path":     c.KeyPath,
		"ca-cert-path": c.CACertPath,
	} {
		if path == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}

		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
	}

	return nil
}

// SetupTLS loads the certificates in config and returns a TLS 1.3
// configuration. Servers require and verify client certificates; clients
// verify the server against the CA.
func SetupTLS(config *Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	caCert, err := os.ReadFile(config.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: false,
		ServerName:         config.ServerName,
		Certificates:       []tls.Certificate{cert},
	}

	if config.Server {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = caCertPool
	} else {
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
