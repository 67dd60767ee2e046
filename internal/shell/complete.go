package shell

import (
	"context"
	"strings"

	"github.com/nixpig/wardensh/internal/protocol"
	"go.uber.org/zap"
)

// handlePrefix is the first character of a word that switches completion
// from verbs to container handles.
//
// NOTE: This mirrors how handles have always been issued (they happen to
// start with '0'); completion does not look at the word's position in the
// line.
const handlePrefix = '0'

// Completer offers completions for the word under the cursor, drawn either
// from the known verbs or from the handles of live containers.
type Completer struct {
	client Client
	logger *zap.Logger
}

// NewCompleter creates a Completer that fetches handles through client.
func NewCompleter(client Client, logger *zap.Logger) *Completer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Completer{client: client, logger: logger}
}

// Candidates returns, in their natural order, the candidates that start with
// partial. A partial word starting with '0' is completed against the handles
// returned by a fresh list call; anything else against Verbs. A failed list
// call yields no candidates.
func (c *Completer) Candidates(ctx context.Context, partial string) []string {
	universe := Verbs

	if len(partial) > 0 && partial[0] == handlePrefix {
		universe = c.handles(ctx)
	}

	var candidates []string

	for _, candidate := range universe {
		if strings.HasPrefix(candidate, partial) {
			candidates = append(candidates, candidate)
		}
	}

	return candidates
}

// Do implements readline.AutoCompleter. It returns the remainder of each
// candidate after the partial word, followed by a space, and the length of
// the partial word.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	partial := partialWord(line, pos)

	candidates := c.Candidates(context.Background(), string(partial))

	suffixes := make([][]rune, 0, len(candidates))

	for _, candidate := range candidates {
		suffix := []rune(candidate)[len(partial):]
		suffixes = append(suffixes, append(suffix, ' '))
	}

	return suffixes, len(partial)
}

func (c *Completer) handles(ctx context.Context) []string {
	result, err := c.client.Call(ctx, []string{VerbList})
	if err != nil {
		c.logger.Debug("list handles for completion", zap.Error(err))
		return nil
	}

	items, ok := result.([]any)
	if !ok {
		c.logger.Debug(
			"list handles for completion",
			zap.String("err", "unexpected result type"),
			zap.Any("result", result),
		)
		return nil
	}

	handles := make([]string, 0, len(items))
	for _, item := range items {
		handles = append(handles, protocol.Text(item))
	}

	return handles
}

// partialWord returns the text from the start of the word under the cursor
// up to the cursor.
func partialWord(line []rune, pos int) []rune {
	if pos > len(line) {
		pos = len(line)
	}

	start := pos
	for start > 0 && !isSpace(line[start-1]) {
		start--
	}

	return line[start:pos]
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
