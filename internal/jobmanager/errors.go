package jobmanager

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by Manager lookups for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// InvalidStateError is returned when attempting an invalid Job state
// transition, e.g. stopping a job that has already exited.
type InvalidStateError struct {
	From JobState
	To   JobState
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.From, e.To)
}

func NewInvalidStateError(from, to JobState) InvalidStateError {
	return InvalidStateError{From: from, To: to}
}
