package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/nixpig/wardensh/internal/client"
	"github.com/nixpig/wardensh/internal/logging"
	"github.com/nixpig/wardensh/internal/tlsconfig"
	"github.com/nixpig/wardensh/internal/warden"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func rootCmd() *cobra.Command {
	cfg := &config{}

	c := &cobra.Command{
		Use:          "wardend",
		Short:        "Development server for the warden container protocol",
		Example:      "  wardend --socket /tmp/warden.sock --debug",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			level := "info"
			if cfg.debug {
				level = "debug"
			}

			logger, err := logging.New(level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry, err := warden.NewRegistry(&warden.Config{
				Root:       cfg.root,
				CgroupRoot: cfg.cgroupRoot,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			defer registry.Shutdown()

			listener, err := listen(cfg)
			if err != nil {
				return err
			}

			s := newServer(registry, logger)

			go func() {
				<-cmd.Context().Done()
				s.shutdown()
			}()

			logger.Info("serving", zap.String("addr", listener.Addr().String()))

			return s.serve(listener)
		},
	}

	c.Flags().StringVar(
		&cfg.socketPath,
		"socket",
		client.DefaultTarget,
		"Unix socket to listen on",
	)

	c.Flags().StringVar(
		&cfg.listenAddr,
		"listen",
		"",
		"TCP address to listen on with mTLS instead of the unix socket, e.g. localhost:8443",
	)

	c.Flags().StringVar(&cfg.certPath, "cert-path", "", "Path to server TLS certificate")
	c.Flags().StringVar(&cfg.keyPath, "key-path", "", "Path to server TLS private key")
	c.Flags().StringVar(&cfg.caCertPath, "ca-cert-path", "", "Path to CA certificate for mTLS")

	c.Flags().StringVar(
		&cfg.root,
		"root",
		filepath.Join(os.TempDir(), "warden", "containers"),
		"Directory container working directories are created in",
	)

	c.Flags().StringVar(
		&cfg.cgroupRoot,
		"cgroup-root",
		"",
		"cgroup v2 hierarchy to create container cgroups in, e.g. /sys/fs/cgroup (disabled when empty)",
	)

	c.Flags().BoolVar(&cfg.debug, "debug", false, "Enable debug logs")

	c.CompletionOptions.HiddenDefaultCmd = true

	return c
}

// listen opens the unix socket, replacing a stale one, or the mTLS TCP
// listener.
func listen(cfg *config) (net.Listener, error) {
	if cfg.listenAddr == "" {
		if err := os.Remove(cfg.socketPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}

		return net.Listen("unix", cfg.socketPath)
	}

	tlsConfig, err := tlsconfig.SetupTLS(cfg.tls())
	if err != nil {
		return nil, fmt.Errorf("load TLS credentials: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return nil, err
	}

	return tls.NewListener(listener, tlsConfig), nil
}
