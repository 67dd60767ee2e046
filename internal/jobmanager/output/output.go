// Package output provides concurrent streaming of process output. Multiple
// clients can subscribe to a Streamer and each receive the complete output
// from the beginning.
package output

import (
	"io"
	"sync"
	"time"
)

const (
	// initialBufferCapacity is the starting size for the output buffer.
	initialBufferCapacity = 4096

	// readBufferSize is the temporary buffer size for reading from source pipe.
	// 4KB aligns with typical pipe buffer sizes.
	readBufferSize = 4096

	// drainTimeout is how long output is still read from source after the job
	// has completed. Background processes started by the job may hold the
	// write end of the pipe open indefinitely.
	drainTimeout = 50 * time.Millisecond
)

// Streamer is responsible for processing job output by reading from a
// source io.ReadCloser and storing the data in an internal buffer for use by a
// reader. The internal buffer grows indefinitely to accommodate new output.
//
// A Streamer is done once the job has completed and source has either
// reached EOF or been closed after drainTimeout.
type Streamer struct {
	// NOTE: the buffer size will grow indefinitely with no upper bound. The
	// assumption for this is that 'everything will fit in memory'.
	buffer []byte

	done chan struct{}
	mu   sync.Mutex
	cond sync.Cond
}

// NewStreamer creates a Streamer that reads from source and immediately begins
// processing. It continues processing until source reaches io.EOF or jobDone
// is closed and the drain timeout expires.
func NewStreamer(source io.ReadCloser, jobDone <-chan struct{}) *Streamer {
	s := &Streamer{
		buffer: make([]byte, 0, initialBufferCapacity),
		done:   make(chan struct{}),
	}

	s.cond.L = &s.mu

	readDone := make(chan struct{})

	go func() {
		s.processOutput(source)
		close(readDone)
	}()

	go s.finish(source, jobDone, readDone)

	return s
}

func (s *Streamer) processOutput(source io.ReadCloser) {
	defer source.Close()

	buffer := make([]byte, readBufferSize)

	for {
		n, err := source.Read(buffer)
		if n > 0 {
			s.mu.Lock()

			s.buffer = append(s.buffer, buffer[:n]...)

			s.cond.Broadcast()

			s.mu.Unlock()
		}

		if err != nil {
			// NOTE: Non-EOF errors, including the one from closing source in
			// finish, just end the stream.
			return
		}
	}
}

func (s *Streamer) finish(
	source io.ReadCloser,
	jobDone <-chan struct{},
	readDone <-chan struct{},
) {
	<-jobDone

	select {
	case <-readDone:
	case <-time.After(drainTimeout):
		source.Close()
		<-readDone
	}

	s.mu.Lock()
	close(s.done)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Subscribe returns a io.ReadCloser for reading data from the Streamer.
// Close cancels the subscription.
func (s *Streamer) Subscribe() io.ReadCloser {
	return &reader{s: s}
}

// Done returns a channel that is closed when processing has finished.
func (s *Streamer) Done() <-chan struct{} {
	return s.done
}

func (s *Streamer) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
