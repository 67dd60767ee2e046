package warden

import (
	"errors"
	"fmt"
)

var (
	ErrContainerNotFound = errors.New("unknown handle")
	ErrJobNotFound       = errors.New("unknown job")
	ErrContainerStopped  = errors.New("container is stopped")
)

// UsageError is returned when a request has the wrong arguments for its
// verb.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

func newUsageError(format string, args ...any) *UsageError {
	return &UsageError{Usage: fmt.Sprintf(format, args...)}
}
