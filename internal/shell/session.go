// Package shell implements the interactive warden shell: reading lines,
// splitting and normalising them into commands, completing verbs and
// container handles, dispatching commands and recording history.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nixpig/wardensh/internal/history"
	"github.com/nixpig/wardensh/internal/protocol"
	"go.uber.org/zap"
)

// Prompt is shown before every line.
const Prompt = "warden> "

// ErrInterrupt is returned by a LineSource when the operator abandons the
// current line, e.g. with Ctrl+C.
var ErrInterrupt = errors.New("interrupt")

// Client sends a command to a warden server and waits for its reply.
type Client interface {
	Call(ctx context.Context, tokens []string) (any, error)
}

// LineSource supplies input lines and keeps the recall history used while
// editing. Readline returns io.EOF when input ends.
type LineSource interface {
	Readline() (string, error)
	AddHistory(line string) error
}

// HistoryStore persists the whole line history.
type HistoryStore interface {
	Save(lines []string) error
}

// Config configures a Session.
type Config struct {
	Client  Client
	Lines   LineSource
	Store   HistoryStore
	History *history.Buffer
	Format  protocol.Format
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
}

// Session runs the read-dispatch loop for one operator. It processes a
// single command at a time.
type Session struct {
	client  Client
	lines   LineSource
	store   HistoryStore
	history *history.Buffer
	format  protocol.Format
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger
}

// NewSession creates a Session from config.
func NewSession(config *Config) *Session {
	s := &Session{
		client:  config.Client,
		lines:   config.Lines,
		store:   config.Store,
		history: config.History,
		format:  config.Format,
		stdout:  config.Stdout,
		stderr:  config.Stderr,
		logger:  config.Logger,
	}

	if s.history == nil {
		s.history = history.NewBuffer(history.DefaultSize, nil)
	}

	if s.format == "" {
		s.format = protocol.FormatJSON
	}

	if s.stdout == nil {
		s.stdout = io.Discard
	}

	if s.stderr == nil {
		s.stderr = io.Discard
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// History returns the lines recorded so far, oldest first.
func (s *Session) History() []string {
	return s.history.Lines()
}

// Run reads and processes lines until the line source reports io.EOF or ctx
// is cancelled.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.lines.Readline()
		if err != nil {
			if errors.Is(err, ErrInterrupt) {
				continue
			}

			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("read line: %w", err)
		}

		s.ProcessLine(ctx, line)
	}
}

// ProcessLine handles one input line and reports whether it was processed.
// Lines that are empty or cannot be tokenized are not processed and leave
// the history untouched. Every other line is recorded in the history,
// whether or not the server accepted the command.
func (s *Session) ProcessLine(ctx context.Context, line string) bool {
	tokens, err := Tokenize(line)
	if err != nil {
		fmt.Fprintln(s.stderr, err)
		return false
	}

	if len(tokens) == 0 {
		return false
	}

	tokens = Normalize(tokens)

	if tokens[0] == VerbHelp {
		fmt.Fprint(s.stdout, HelpText)
	} else {
		s.dispatch(ctx, tokens)
	}

	s.record(line)

	return true
}

func (s *Session) dispatch(ctx context.Context, tokens []string) {
	s.logger.Debug("dispatch", zap.Strings("tokens", tokens))

	result, err := s.client.Call(ctx, tokens)
	if err != nil {
		s.renderError(err)
		return
	}

	out, err := protocol.Render(result, s.format)
	if err != nil {
		fmt.Fprintf(s.stderr, "error: %v\n", err)
		return
	}

	fmt.Fprintln(s.stdout, out)
}

func (s *Session) renderError(err error) {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		if perr.Unrecognized() {
			fmt.Fprintf(s.stdout, "%s, try help for assistance.\n", perr.Message)
			return
		}

		fmt.Fprintln(s.stdout, perr.Message)

		return
	}

	// Transport and connection failures: the client reconnects on the
	// next call.
	s.logger.Debug("call failed", zap.Error(err))
	fmt.Fprintf(s.stderr, "error: %v\n", err)
}

func (s *Session) record(line string) {
	s.history.Append(line)

	if s.lines != nil {
		if err := s.lines.AddHistory(line); err != nil {
			s.logger.Debug("add line to recall history", zap.Error(err))
		}
	}

	if s.store == nil {
		return
	}

	if err := s.store.Save(s.history.Lines()); err != nil {
		s.logger.Debug("save history", zap.Error(err))
		fmt.Fprintf(s.stderr, "warning: failed to save history: %v\n", err)
	}
}
