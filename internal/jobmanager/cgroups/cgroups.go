// Package cgroups manages the cgroup v2 directories that confine warden
// containers. Only the memory controller is configured.
package cgroups

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultRoot is where the cgroup v2 hierarchy is normally mounted.
	DefaultRoot = "/sys/fs/cgroup"

	namePrefix = "warden-"
	unlimited  = "max"
)

// Cgroup is a cgroup directory created for a single container.
type Cgroup struct {
	name string
	path string
	fd   *os.File
}

// Create creates the cgroup for the container name under root. When root is
// the real cgroup hierarchy the directory is kept open so processes can be
// placed into it as they are started.
func Create(root, name string) (*Cgroup, error) {
	cg := &Cgroup{
		name: name,
		path: filepath.Join(root, namePrefix+name),
	}

	if err := os.MkdirAll(cg.path, 0755); err != nil {
		return nil, fmt.Errorf("make cgroup dir: %w", err)
	}

	if isRealCgroupRoot(root) {
		fd, err := os.Open(cg.path)
		if err != nil {
			os.RemoveAll(cg.path)
			return nil, fmt.Errorf("open cgroup dir: %w", err)
		}

		cg.fd = fd
	}

	return cg, nil
}

// SetMemoryLimit writes memory.max. A limit of zero or less removes the
// limit.
func (c *Cgroup) SetMemoryLimit(bytes int64) error {
	value := unlimited
	if bytes > 0 {
		value = strconv.FormatInt(bytes, 10)
	}

	if err := os.WriteFile(
		filepath.Join(c.path, "memory.max"),
		[]byte(value),
		0644,
	); err != nil {
		return fmt.Errorf("write memory.max: %w", err)
	}

	return nil
}

// MemoryLimit reads memory.max. It returns zero when there is no limit.
func (c *Cgroup) MemoryLimit() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "memory.max"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("read memory.max: %w", err)
	}

	value := string(bytes.TrimSpace(data))
	if value == unlimited || value == "" {
		return 0, nil
	}

	limit, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse memory.max: %w", err)
	}

	return limit, nil
}

// Join moves the process with the given pid into the cgroup.
func (c *Cgroup) Join(pid int) error {
	if err := os.WriteFile(
		filepath.Join(c.path, "cgroup.procs"),
		[]byte(strconv.Itoa(pid)),
		0644,
	); err != nil {
		return fmt.Errorf("add process to cgroup: %w", err)
	}

	return nil
}

// Kill kills every process in the cgroup.
func (c *Cgroup) Kill() error {
	if err := os.WriteFile(
		filepath.Join(c.path, "cgroup.kill"),
		[]byte("1"),
		0644,
	); err != nil {
		return fmt.Errorf("write cgroup.kill: %w", err)
	}

	return nil
}

// Destroy closes the cgroup directory and removes it.
func (c *Cgroup) Destroy() error {
	// Ignore error and just go ahead and remove.
	c.close()

	// NOTE: A real cgroup directory only contains kernel interface files and
	// must be removed with rmdir. A plain directory tree (tests, or a root
	// that is not a cgroup mount) needs RemoveAll.
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		if err := os.RemoveAll(c.path); err != nil {
			return fmt.Errorf("remove cgroup: %w", err)
		}
	}

	return nil
}

func (c *Cgroup) close() error {
	if c.fd != nil {
		err := c.fd.Close()

		c.fd = nil

		if err != nil {
			return fmt.Errorf("close cgroup fd: %w", err)
		}
	}

	return nil
}

// FD returns the open cgroup directory, or nil when the cgroup is not part
// of the real hierarchy.
func (c *Cgroup) FD() *os.File {
	return c.fd
}

// Name returns the container name the cgroup was created for.
func (c *Cgroup) Name() string {
	return c.name
}

// Path returns the cgroup directory.
func (c *Cgroup) Path() string {
	return c.path
}

func isRealCgroupRoot(root string) bool {
	clean := filepath.Clean(root)
	return clean == DefaultRoot || strings.HasPrefix(clean, DefaultRoot+"/")
}

// ValidateRoot checks root is the top of a cgroup v2 hierarchy.
func ValidateRoot(root string) error {
	controllersPath := filepath.Join(root, "cgroup.controllers")
	if _, err := os.Stat(controllersPath); err != nil {
		return fmt.Errorf("cgroup root not valid at %s: %w", root, err)
	}

	return nil
}
