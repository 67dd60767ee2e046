package shell_test

import (
	"context"
	"errors"
	"io"
)

type call struct {
	tokens []string
}

// fakeClient replies from a table keyed by verb and records every call.
type fakeClient struct {
	replies map[string]any
	errs    map[string]error
	calls   []call
}

func (c *fakeClient) Call(ctx context.Context, tokens []string) (any, error) {
	c.calls = append(c.calls, call{tokens: append([]string(nil), tokens...)})

	if err, ok := c.errs[tokens[0]]; ok {
		return nil, err
	}

	if reply, ok := c.replies[tokens[0]]; ok {
		return reply, nil
	}

	return "ok", nil
}

// fakeLines replays a fixed set of lines, then reports io.EOF.
type fakeLines struct {
	lines   []string
	errs    []error
	history []string
}

func (l *fakeLines) Readline() (string, error) {
	if len(l.lines) == 0 {
		return "", io.EOF
	}

	line := l.lines[0]
	l.lines = l.lines[1:]

	var err error
	if len(l.errs) > 0 {
		err = l.errs[0]
		l.errs = l.errs[1:]
	}

	return line, err
}

func (l *fakeLines) AddHistory(line string) error {
	l.history = append(l.history, line)
	return nil
}

// memoryStore keeps the last saved history, or fails every save when err is
// set.
type memoryStore struct {
	saved [][]string
	err   error
}

func (s *memoryStore) Save(lines []string) error {
	if s.err != nil {
		return s.err
	}

	s.saved = append(s.saved, lines)

	return nil
}

func (s *memoryStore) last() []string {
	if len(s.saved) == 0 {
		return nil
	}

	return s.saved[len(s.saved)-1]
}

var errBrokenPipe = errors.New("broken pipe")
