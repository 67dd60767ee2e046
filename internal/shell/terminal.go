package shell

import (
	"errors"
	"io"
	"math"
	"sync"

	"github.com/chzyer/readline"
)

// Terminal is a LineSource backed by an interactive line editor with tab
// completion and in-memory recall history.
type Terminal struct {
	rl *readline.Instance

	closeOnce sync.Once
	closeErr  error
}

// NewTerminal creates a Terminal showing prompt, completing with completer
// and seeded with the given recall history, oldest first.
func NewTerminal(
	prompt string,
	completer readline.AutoCompleter,
	lines []string,
	historySize int,
) (*Terminal, error) {
	config := &readline.Config{
		Prompt:          prompt,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		// History is persisted by the session, not by the editor.
		DisableAutoSaveHistory: true,
	}

	config.HistoryLimit = recallLimit(historySize)

	rl, err := readline.NewEx(config)
	if err != nil {
		return nil, err
	}

	t := &Terminal{rl: rl}

	for _, line := range lines {
		if err := t.AddHistory(line); err != nil {
			rl.Close()
			return nil, err
		}
	}

	return t, nil
}

// Readline reads one line. It returns ErrInterrupt on Ctrl+C and io.EOF on
// Ctrl+D or when the Terminal is closed.
func (t *Terminal) Readline() (string, error) {
	line, err := t.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", ErrInterrupt
		}

		return "", err
	}

	return line, nil
}

// AddHistory appends line to the recall history.
func (t *Terminal) AddHistory(line string) error {
	return t.rl.SaveHistory(line)
}

// Stdout returns a writer that does not garble the line being edited.
func (t *Terminal) Stdout() io.Writer {
	return t.rl.Stdout()
}

// Stderr returns a writer that does not garble the line being edited.
func (t *Terminal) Stderr() io.Writer {
	return t.rl.Stderr()
}

// Close restores the terminal. A pending Readline returns io.EOF. Calling
// Close more than once is safe.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.rl.Close()
	})

	return t.closeErr
}

// recallLimit maps a history size to the editor's limit. The editor treats 0
// as 500 entries, so an unbounded history needs an explicit maximum.
func recallLimit(historySize int) int {
	if historySize <= 0 {
		return math.MaxInt
	}

	return historySize
}
