// Package client implements the connection to a warden server. A Client
// carries one request at a time over a single connection, matching the
// in-order request/reply framing of the protocol.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nixpig/wardensh/internal/protocol"
	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	// Target is a locator accepted by ParseTarget.
	Target string

	// TLS, when set, wraps TCP connections in TLS. It is ignored for unix
	// sockets.
	TLS *tls.Config

	Logger *zap.Logger
}

// Client is a connection to a warden server. It is safe for concurrent use,
// but requests are serialised.
type Client struct {
	target    Target
	tlsConfig *tls.Config
	logger    *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// New creates a Client for the configured target. It does not connect.
func New(config *Config) (*Client, error) {
	target, err := ParseTarget(config.Target)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		target:    target,
		tlsConfig: config.TLS,
		logger:    logger.With(zap.Stringer("target", target)),
	}, nil
}

// Target returns the parsed target of the Client.
func (c *Client) Target() Target {
	return c.target
}

// Connect opens the connection if it is not already open. Failure is
// reported as a *ConnectionError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connect(ctx)
}

// Connected reports whether the Client holds an open connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Write sends tokens as a single request.
func (c *Client) Write(tokens []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.write(tokens)
}

// Read waits for the next reply. A reply of type error is returned as a
// *protocol.Error and leaves the connection open.
func (c *Client) Read() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.read()
}

// Call connects if needed, sends tokens and waits for the reply. If ctx has
// a deadline it bounds the round-trip; otherwise Call blocks until the
// server replies, as link and run do by design.
func (c *Client) Call(ctx context.Context, tokens []string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.close()
		return nil, &TransportError{Op: "set deadline", Err: err}
	}

	if err := c.write(tokens); err != nil {
		return nil, err
	}

	return c.read()
}

// Close closes the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.close()
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	var (
		conn net.Conn
		err  error
	)

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	if c.tlsConfig != nil && c.target.Network == NetworkTCP {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, c.target.Network, c.target.Address)
	} else {
		conn, err = dialer.DialContext(ctx, c.target.Network, c.target.Address)
	}

	if err != nil {
		return &ConnectionError{Target: c.target.String(), Err: err}
	}

	c.logger.Debug("connected")

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	return nil
}

func (c *Client) write(tokens []string) error {
	if c.conn == nil {
		return &TransportError{Op: "write", Err: ErrNotConnected}
	}

	if err := protocol.WriteRequest(c.conn, tokens); err != nil {
		if errors.Is(err, protocol.ErrEmptyRequest) {
			return err
		}

		c.close()

		return &TransportError{Op: "write", Err: err}
	}

	return nil
}

func (c *Client) read() (any, error) {
	if c.conn == nil {
		return nil, &TransportError{Op: "read", Err: ErrNotConnected}
	}

	payload, err := protocol.ReadReply(c.reader)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			return nil, perr
		}

		// The stream position is unknown after a failed read, so the
		// connection cannot be reused.
		c.close()

		return nil, &TransportError{Op: "read", Err: err}
	}

	return payload, nil
}

func (c *Client) close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()

	c.conn = nil
	c.reader = nil

	c.logger.Debug("disconnected")

	return err
}
