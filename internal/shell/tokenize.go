package shell

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
)

// SyntaxError is returned when a line cannot be split into words, e.g. it
// has an unterminated quote.
type SyntaxError struct {
	Line   string
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s", e.Reason)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

var syntaxReasons = map[error]string{
	shellquote.UnterminatedSingleQuoteError: "unterminated single quote",
	shellquote.UnterminatedDoubleQuoteError: "unterminated double quote",
	shellquote.UnterminatedEscapeError:      "trailing backslash",
}

// Tokenize splits line into words using /bin/sh quoting rules. Bytes are
// kept as typed, including invalid UTF-8.
//
// NOTE: '#' has no special meaning, so arguments like #42 are kept as words
// rather than treated as comments.
func Tokenize(line string) ([]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		reason := err.Error()
		for target, r := range syntaxReasons {
			if errors.Is(err, target) {
				reason = r
				break
			}
		}

		return nil, &SyntaxError{Line: line, Reason: reason, Err: err}
	}

	if len(words) == 0 {
		return nil, nil
	}

	return words, nil
}
