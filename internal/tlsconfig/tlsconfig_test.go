package tlsconfig_test

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/nixpig/wardensh/internal/tlsconfig"
	"github.com/nixpig/wardensh/internal/tlsconfig/tlstest"
)

func TestSetupTLS(t *testing.T) {
	t.Parallel()

	files := tlstest.WriteCerts(t)

	t.Run("Test server TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   files.ServerCert,
			KeyPath:    files.ServerKey,
			CACertPath: files.CACert,
			Server:     true,
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.MinVersion != tls.VersionTLS13 {
			t.Errorf(
				"expected min TLS version: got '%v', want '%v'",
				tlsConfig.MinVersion,
				tls.VersionTLS13,
			)
		}

		if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Errorf(
				"expected client auth: got '%v', want '%v'",
				tlsConfig.ClientAuth,
				tls.RequireAndVerifyClientCert,
			)
		}

		if tlsConfig.ClientCAs == nil {
			t.Errorf("expected client CAs to be set")
		}
	})

	t.Run("Test client TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   files.OperatorCert,
			KeyPath:    files.OperatorKey,
			CACertPath: files.CACert,
			ServerName: "localhost",
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.ServerName != "localhost" {
			t.Errorf(
				"expected server name: got '%s', want 'localhost'",
				tlsConfig.ServerName,
			)
		}

		if tlsConfig.RootCAs == nil {
			t.Errorf("expected root CAs to be set")
		}

		if tlsConfig.InsecureSkipVerify != false {
			t.Errorf(
				"expected insecure skip verify: got '%t', want 'false'",
				tlsConfig.InsecureSkipVerify,
			)
		}
	})

	t.Run("Test missing CA certificate", func(t *testing.T) {
		t.Parallel()

		_, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   files.OperatorCert,
			KeyPath:    files.OperatorKey,
			CACertPath: filepath.Join(t.TempDir(), "missing.crt"),
		})
		if err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})

	t.Run("Test CA file that is not PEM", func(t *testing.T) {
		t.Parallel()

		_, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   files.OperatorCert,
			KeyPath:    files.OperatorKey,
			CACertPath: files.OperatorKey,
		})
		if err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	files := tlstest.WriteCerts(t)

	t.Run("Test empty config is disabled", func(t *testing.T) {
		t.Parallel()

		if (&tlsconfig.Config{}).Enabled() {
			t.Errorf("expected empty config to be disabled")
		}
	})

	t.Run("Test complete config is valid", func(t *testing.T) {
		t.Parallel()

		config := &tlsconfig.Config{
			CertPath:   files.OperatorCert,
			KeyPath:    files.OperatorKey,
			CACertPath: files.CACert,
		}

		if !config.Enabled() {
			t.Errorf("expected config to be enabled")
		}

		if err := config.Validate(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}
	})

	t.Run("Test partial config is invalid", func(t *testing.T) {
		t.Parallel()

		config := &tlsconfig.Config{CertPath: files.OperatorCert}

		if err := config.Validate(); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})
}
