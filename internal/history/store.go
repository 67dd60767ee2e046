// Package history persists the shell's line history as a JSON array of
// strings, oldest first.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultFileName is the name of the history file in the user's home
// directory.
const DefaultFileName = ".warden-history"

// PersistenceError is returned when the history file cannot be read or
// written. The in-memory history is never affected by one.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s history %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store reads and writes the history file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a Store for the file at path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{path: path, logger: logger.With(zap.String("history", path))}
}

// Path returns the location of the history file.
func (s *Store) Path() string {
	return s.path
}

// Restore returns the persisted lines in order. A missing or empty file
// yields no lines and no error. A file that cannot be read or parsed yields
// no lines and a *PersistenceError, so the caller can start with an empty
// history.
func (s *Store) Restore() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("history restore miss")
			return nil, nil
		}

		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, &PersistenceError{Op: "parse", Path: s.path, Err: err}
	}

	s.logger.Debug("history restore ok", zap.Int("lines", len(lines)))

	return lines, nil
}

// Save replaces the history file with lines. The file is written to a
// temporary file in the same directory and renamed into place, so a failed
// save never leaves a truncated record behind.
func (s *Store) Save(lines []string) error {
	if lines == nil {
		lines = []string{}
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	s.logger.Debug("history save ok", zap.Int("lines", len(lines)))

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return nil
}
