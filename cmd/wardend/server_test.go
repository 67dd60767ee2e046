package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nixpig/wardensh/internal/client"
	"github.com/nixpig/wardensh/internal/protocol"
	"github.com/nixpig/wardensh/internal/tlsconfig"
	"github.com/nixpig/wardensh/internal/tlsconfig/tlstest"
	"github.com/nixpig/wardensh/internal/warden"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setupTestServer starts a server on listener backed by a fresh registry
// and stops both when the test ends.
func setupTestServer(t *testing.T, listener net.Listener) {
	t.Helper()

	registry, err := warden.NewRegistry(&warden.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to setup registry: '%v'", err)
	}

	s := newServer(registry, zap.NewNop())

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := s.serve(listener); err != nil {
			t.Logf("failed to serve: '%v'", err)
		}
	}()

	t.Cleanup(func() {
		s.shutdown()
		<-done
		registry.Shutdown()
	})
}

func setupUnixClient(t *testing.T) *client.Client {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "warden.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to setup listener: '%v'", err)
	}

	setupTestServer(t, listener)

	c, err := client.New(&client.Config{Target: socketPath})
	if err != nil {
		t.Fatalf("failed to create client: '%v'", err)
	}

	t.Cleanup(func() { c.Close() })

	return c
}

func call(t *testing.T, c *client.Client, tokens ...string) any {
	t.Helper()

	result, err := c.Call(context.Background(), tokens)
	if err != nil {
		t.Fatalf("expected %v not to return error: got '%v'", tokens, err)
	}

	return result
}

func TestServer(t *testing.T) {
	t.Run("Test ping", func(t *testing.T) {
		c := setupUnixClient(t)

		if got := call(t, c, "ping"); got != "pong" {
			t.Errorf("expected pong: got '%v'", got)
		}
	})

	t.Run("Test container and job lifecycle", func(t *testing.T) {
		c := setupUnixClient(t)

		h, ok := call(t, c, "create").(string)
		if !ok {
			t.Fatalf("expected handle")
		}

		if diff := cmp.Diff([]any{h}, call(t, c, "list")); diff != "" {
			t.Errorf("unexpected list (-want +got):\n%s", diff)
		}

		id := call(t, c, "spawn", h, "echo spawned").(string)

		want := map[string]any{
			"exit_status": json.Number("0"),
			"output":      "spawned\n",
		}

		if diff := cmp.Diff(want, call(t, c, "link", h, id)); diff != "" {
			t.Errorf("unexpected link result (-want +got):\n%s", diff)
		}

		want = map[string]any{
			"exit_status": json.Number("1"),
			"output":      "ran\n",
		}

		if diff := cmp.Diff(want, call(t, c, "run", h, "echo ran; false")); diff != "" {
			t.Errorf("unexpected run result (-want +got):\n%s", diff)
		}

		if got := call(t, c, "destroy", h); got != "ok" {
			t.Errorf("expected ok: got '%v'", got)
		}

		if diff := cmp.Diff([]any{}, call(t, c, "list")); diff != "" {
			t.Errorf("unexpected list (-want +got):\n%s", diff)
		}
	})

	t.Run("Test errors keep the connection open", func(t *testing.T) {
		c := setupUnixClient(t)

		scenarios := map[string]struct {
			tokens       []string
			message      string
			unrecognized bool
		}{
			"Unknown verb": {
				tokens:       []string{"frob"},
				message:      "unknown command: frob",
				unrecognized: true,
			},
			"Unknown handle": {
				tokens:  []string{"info", "0missing"},
				message: "unknown handle: 0missing",
			},
			"Missing handle": {
				tokens:  []string{"stop"},
				message: "usage: stop <handle>",
			},
		}

		for scenario, config := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				_, err := c.Call(context.Background(), config.tokens)

				var perr *protocol.Error
				if !errors.As(err, &perr) {
					t.Fatalf("expected protocol error: got '%v'", err)
				}

				if perr.Message != config.message {
					t.Errorf("expected message: got '%s', want '%s'", perr.Message, config.message)
				}

				if perr.Unrecognized() != config.unrecognized {
					t.Errorf("expected unrecognized: got '%t'", perr.Unrecognized())
				}

				if !c.Connected() {
					t.Errorf("expected client to stay connected")
				}
			})
		}
	})

	t.Run("Test malformed request", func(t *testing.T) {
		socketPath := filepath.Join(t.TempDir(), "warden.sock")

		listener, err := net.Listen("unix", socketPath)
		if err != nil {
			t.Fatalf("failed to setup listener: '%v'", err)
		}

		setupTestServer(t, listener)

		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			t.Fatalf("failed to connect: '%v'", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("{\"not\":\"an array\"}\n[\"ping\"]\n")); err != nil {
			t.Fatalf("failed to write: '%v'", err)
		}

		r := bufio.NewReader(conn)

		if _, err := protocol.ReadReply(r); !errors.As(err, new(*protocol.Error)) {
			t.Errorf("expected protocol error: got '%v'", err)
		}

		got, err := protocol.ReadReply(r)
		if err != nil || got != "pong" {
			t.Errorf("expected pong after malformed request: got '%v', '%v'", got, err)
		}
	})
}

func TestServerWithMTLS(t *testing.T) {
	certs := tlstest.WriteCerts(t)

	serverTLS, err := tlsconfig.SetupTLS(&tlsconfig.Config{
		CertPath:   certs.ServerCert,
		KeyPath:    certs.ServerKey,
		CACertPath: certs.CACert,
		Server:     true,
	})
	if err != nil {
		t.Fatalf("failed to setup server TLS: '%v'", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to setup listener: '%v'", err)
	}

	setupTestServer(t, tls.NewListener(listener, serverTLS))

	newClient := func(t *testing.T, certPath, keyPath string) *client.Client {
		t.Helper()

		clientTLS, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   certPath,
			KeyPath:    keyPath,
			CACertPath: certs.CACert,
			ServerName: "localhost",
		})
		if err != nil {
			t.Fatalf("failed to setup client TLS: '%v'", err)
		}

		c, err := client.New(&client.Config{
			Target: "tcp://" + listener.Addr().String(),
			TLS:    clientTLS,
		})
		if err != nil {
			t.Fatalf("failed to create client: '%v'", err)
		}

		t.Cleanup(func() { c.Close() })

		return c
	}

	t.Run("Test operator can create", func(t *testing.T) {
		c := newClient(t, certs.OperatorCert, certs.OperatorKey)

		if _, ok := call(t, c, "create").(string); !ok {
			t.Errorf("expected handle")
		}
	})

	t.Run("Test viewer cannot create", func(t *testing.T) {
		c := newClient(t, certs.ViewerCert, certs.ViewerKey)

		_, err := c.Call(context.Background(), []string{"create"})

		var perr *protocol.Error
		if !errors.As(err, &perr) || perr.Message != "permission denied" {
			t.Errorf("expected permission denied: got '%v'", err)
		}

		if got := call(t, c, "ping"); got != "pong" {
			t.Errorf("expected viewer ping: got '%v'", got)
		}
	})

	t.Run("Test viewer gets unknown command for unknown verb", func(t *testing.T) {
		c := newClient(t, certs.ViewerCert, certs.ViewerKey)

		_, err := c.Call(context.Background(), []string{"frob"})

		var perr *protocol.Error
		if !errors.As(err, &perr) || !perr.Unrecognized() {
			t.Errorf("expected unknown command: got '%v'", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	certs := tlstest.WriteCerts(t)

	scenarios := map[string]struct {
		config *config
		valid  bool
	}{
		"Unix socket": {
			config: &config{socketPath: "/tmp/warden.sock", root: "/tmp/w"},
			valid:  true,
		},
		"Empty socket": {
			config: &config{root: "/tmp/w"},
			valid:  false,
		},
		"Certificates without listen": {
			config: &config{socketPath: "/tmp/warden.sock", root: "/tmp/w", certPath: certs.ServerCert},
			valid:  false,
		},
		"TCP with certificates": {
			config: &config{
				listenAddr: "localhost:8443",
				certPath:   certs.ServerCert,
				keyPath:    certs.ServerKey,
				caCertPath: certs.CACert,
				root:       "/tmp/w",
			},
			valid: true,
		},
		"TCP without certificates": {
			config: &config{listenAddr: "localhost:8443", root: "/tmp/w"},
			valid:  false,
		},
		"Bad listen address": {
			config: &config{
				listenAddr: "localhost",
				certPath:   certs.ServerCert,
				keyPath:    certs.ServerKey,
				caCertPath: certs.CACert,
				root:       "/tmp/w",
			},
			valid: false,
		},
		"Empty root": {
			config: &config{socketPath: "/tmp/warden.sock"},
			valid:  false,
		},
	}

	for scenario, c := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			err := c.config.validate()

			if c.valid && err != nil {
				t.Errorf("expected not to receive error: got '%v'", err)
			}

			if !c.valid && err == nil {
				t.Errorf("expected to receive error")
			}
		})
	}
}
