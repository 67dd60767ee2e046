package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

// DefaultTarget is the well-known local socket of a warden server.
const DefaultTarget = "/tmp/warden.sock"

// Target identifies where a warden server listens.
type Target struct {
	Network string
	Address string
}

func (t Target) String() string {
	return t.Network + "://" + t.Address
}

// ParseTarget parses a locator of the form "unix:///path/to.sock",
// "tcp://host:port" or a bare socket path.
func ParseTarget(locator string) (Target, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return Target{}, errors.New("target cannot be empty")
	}

	if !strings.Contains(locator, "://") {
		return Target{Network: NetworkUnix, Address: locator}, nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return Target{}, fmt.Errorf("parse target: %w", err)
	}

	switch u.Scheme {
	case NetworkUnix:
		path := u.Path
		if u.Host != "" {
			// unix://relative/path
			path = u.Host + u.Path
		}

		if path == "" {
			return Target{}, errors.New("unix target requires a socket path")
		}

		return Target{Network: NetworkUnix, Address: path}, nil

	case NetworkTCP:
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return Target{}, fmt.Errorf("parse tcp target: %w", err)
		}

		return Target{Network: NetworkTCP, Address: u.Host}, nil

	default:
		return Target{}, fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}
}
