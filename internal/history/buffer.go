package history

// DefaultSize is the default number of lines kept in a Buffer.
const DefaultSize = 1000

// Buffer is the in-memory, ordered line history of a session. Duplicates are
// kept. When a size is set, the oldest lines are dropped once it is reached.
type Buffer struct {
	lines []string
	size  int
}

// NewBuffer creates a Buffer seeded with lines. A size of zero or less
// means the buffer is unbounded.
func NewBuffer(size int, lines []string) *Buffer {
	b := &Buffer{size: size}

	for _, line := range lines {
		b.Append(line)
	}

	return b
}

// Append adds line as the most recent entry.
func (b *Buffer) Append(line string) {
	b.lines = append(b.lines, line)

	if b.size > 0 && len(b.lines) > b.size {
		b.lines = append([]string(nil), b.lines[len(b.lines)-b.size:]...)
	}
}

// Lines returns a copy of the entries, oldest first.
func (b *Buffer) Lines() []string {
	return append([]string(nil), b.lines...)
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	return len(b.lines)
}
