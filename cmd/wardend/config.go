package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/nixpig/wardensh/internal/tlsconfig"
)

type config struct {
	socketPath string
	listenAddr string

	certPath   string
	keyPath    string
	caCertPath string

	root       string
	cgroupRoot string

	debug bool
}

func (c *config) tls() *tlsconfig.Config {
	return &tlsconfig.Config{
		CertPath:   c.certPath,
		KeyPath:    c.keyPath,
		CACertPath: c.caCertPath,
		Server:     true,
	}
}

func (c *config) validate() error {
	if c.listenAddr == "" {
		if c.socketPath == "" {
			return errors.New("socket cannot be empty")
		}

		if c.tls().Enabled() {
			return errors.New("certificates are only used with --listen")
		}
	} else {
		_, port, err := net.SplitHostPort(c.listenAddr)
		if err != nil {
			return fmt.Errorf("parse listen address: %w", err)
		}

		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("port string to number: %w", err)
		}

		if p < 0 || p > 65535 {
			return errors.New("port must be in valid range")
		}

		// NOTE: TCP is only served with mTLS.
		if err := c.tls().Validate(); err != nil {
			return err
		}
	}

	if c.root == "" {
		return errors.New("root cannot be empty")
	}

	return nil
}
