package client

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Write and Read when there is no open
// connection.
var ErrNotConnected = errors.New("not connected")

// ConnectionError is returned when a connection to the target cannot be
// established.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportError is returned when a request or reply could not be carried
// over an established connection. The connection is closed when one occurs
// and the next Call reconnects.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
