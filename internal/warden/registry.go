// Package warden implements the containers and jobs behind the warden
// protocol verbs. Containers are directories with optional cgroup memory
// limits; jobs are shell commands run inside them by the job manager.
package warden

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nixpig/wardensh/internal/jobmanager"
	"github.com/nixpig/wardensh/internal/jobmanager/cgroups"
	"github.com/nixpig/wardensh/internal/protocol"
	"go.uber.org/zap"
)

const (
	// firstHostPort is the first port handed out by "net in".
	firstHostPort = 61001

	handleLength = 10
	shell        = "/bin/sh"
)

// Config configures a Registry.
type Config struct {
	// Root is the directory container working directories are created in.
	Root string

	// CgroupRoot, if set, is the cgroup v2 hierarchy containers get a cgroup
	// in. Memory limits are only applied when it is set.
	CgroupRoot string

	Manager *jobmanager.Manager
	Logger  *zap.Logger
}

// LinkResult is the outcome of a completed job.
type LinkResult struct {
	ExitStatus int    `json:"exit_status"`
	Output     string `json:"output"`
}

// Registry holds the containers of a server and executes requests against
// them. Safe for concurrent use.
type Registry struct {
	root       string
	cgroupRoot string
	manager    *jobmanager.Manager
	logger     *zap.Logger

	containers map[string]*Container
	nextPort   int

	mu sync.Mutex
}

// NewRegistry creates a Registry, creating the root directory and checking
// the cgroup root if one is configured.
func NewRegistry(config *Config) (*Registry, error) {
	if config.Root == "" {
		return nil, errors.New("root cannot be empty")
	}

	if err := os.MkdirAll(config.Root, 0755); err != nil {
		return nil, fmt.Errorf("make root dir: %w", err)
	}

	if config.CgroupRoot != "" {
		if err := cgroups.ValidateRoot(config.CgroupRoot); err != nil {
			return nil, err
		}
	}

	manager := config.Manager
	if manager == nil {
		manager = jobmanager.NewManager()
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		root:       config.Root,
		cgroupRoot: config.CgroupRoot,
		manager:    manager,
		logger:     logger,
		containers: make(map[string]*Container),
		nextPort:   firstHostPort,
	}, nil
}

// Handle executes one request and returns its payload. Errors are reported
// to the client as their message.
func (r *Registry) Handle(ctx context.Context, tokens []string) (any, error) {
	if len(tokens) == 0 {
		return nil, protocol.ErrEmptyRequest
	}

	verb, args := tokens[0], tokens[1:]

	switch verb {
	case "ping":
		return "pong", nil
	case "create":
		return r.Create()
	case "list":
		return r.List(), nil
	}

	handler, ok := map[string]func(context.Context, *Container, []string) (any, error){
		"stop":    r.stop,
		"destroy": r.destroy,
		"spawn":   r.spawn,
		"link":    r.link,
		"run":     r.run,
		"net":     r.net,
		"limit":   r.limit,
		"info":    r.info,
	}[verb]
	if !ok {
		return nil, protocol.UnknownCommandError(verb)
	}

	if len(args) == 0 {
		return nil, newUsageError("%s <handle>", verb)
	}

	c, err := r.container(args[0])
	if err != nil {
		return nil, err
	}

	r.logger.Debug("handle", zap.String("verb", verb), zap.String("handle", c.handle))

	return handler(ctx, c, args[1:])
}

// Create creates a new container and returns its handle.
func (r *Registry) Create() (string, error) {
	r.mu.Lock()
	handle := r.newHandle()
	r.containers[handle] = nil
	r.mu.Unlock()

	c, err := r.newContainer(handle)
	if err != nil {
		r.mu.Lock()
		delete(r.containers, handle)
		r.mu.Unlock()

		return "", err
	}

	r.mu.Lock()
	r.containers[handle] = c
	r.mu.Unlock()

	r.logger.Info("container created", zap.String("handle", handle))

	return handle, nil
}

// List returns the handles of all containers, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]string, 0, len(r.containers))
	for handle, c := range r.containers {
		if c != nil {
			handles = append(handles, handle)
		}
	}

	slices.Sort(handles)

	return handles
}

// Shutdown destroys every container.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	containers := slices.Collect(maps.Values(r.containers))
	r.mu.Unlock()

	for _, c := range containers {
		if c == nil {
			continue
		}

		if _, err := r.destroy(context.Background(), c, nil); err != nil {
			r.logger.Warn("destroy container", zap.String("handle", c.handle), zap.Error(err))
		}
	}

	r.manager.Shutdown()
}

// newHandle must be called with r.mu held.
func (r *Registry) newHandle() string {
	for {
		handle := "0" + strings.ReplaceAll(uuid.NewString(), "-", "")[:handleLength]
		if _, exists := r.containers[handle]; !exists {
			return handle
		}
	}
}

func (r *Registry) newContainer(handle string) (*Container, error) {
	c := &Container{
		handle:  handle,
		dir:     filepath.Join(r.root, handle),
		created: time.Now(),
		state:   StateActive,
		jobs:    make(map[string]string),
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("make container dir: %w", err)
	}

	if r.cgroupRoot != "" {
		cg, err := cgroups.Create(r.cgroupRoot, handle)
		if err != nil {
			os.RemoveAll(c.dir)
			return nil, err
		}

		c.cgroup = cg
	}

	return c, nil
}

func (r *Registry) container(handle string) (*Container, error) {
	r.mu.Lock()
	c := r.containers[handle]
	r.mu.Unlock()

	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, handle)
	}

	return c, nil
}

func (r *Registry) stop(ctx context.Context, c *Container, args []string) (any, error) {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	for _, id := range c.managerJobs() {
		if err := r.manager.StopJob(id); err != nil &&
			!errors.As(err, new(jobmanager.InvalidStateError)) {
			r.logger.Warn("stop job", zap.String("handle", c.handle), zap.Error(err))
		}
	}

	if c.cgroup != nil && c.cgroup.FD() != nil {
		if err := c.cgroup.Kill(); err != nil {
			r.logger.Warn("kill cgroup", zap.String("handle", c.handle), zap.Error(err))
		}
	}

	r.logger.Info("container stopped", zap.String("handle", c.handle))

	return "ok", nil
}

func (r *Registry) destroy(ctx context.Context, c *Container, args []string) (any, error) {
	r.stop(ctx, c, nil)

	for _, id := range c.managerJobs() {
		r.manager.RemoveJob(id)
	}

	r.mu.Lock()
	delete(r.containers, c.handle)
	r.mu.Unlock()

	if c.cgroup != nil {
		if err := c.cgroup.Destroy(); err != nil {
			r.logger.Warn("destroy cgroup", zap.String("handle", c.handle), zap.Error(err))
		}
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return nil, fmt.Errorf("remove container dir: %w", err)
	}

	r.logger.Info("container destroyed", zap.String("handle", c.handle))

	return "ok", nil
}

func (r *Registry) spawn(ctx context.Context, c *Container, args []string) (any, error) {
	if len(args) == 0 {
		return nil, newUsageError("spawn <handle> cmd")
	}

	if c.isStopped() {
		return nil, ErrContainerStopped
	}

	managerID, err := r.manager.RunJob(&jobmanager.JobConfig{
		Program: shell,
		Args:    []string{"-c", strings.Join(args, " ")},
		Dir:     c.dir,
		Cgroup:  c.cgroup,
	})
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	id := c.addJob(managerID)

	r.logger.Debug(
		"job spawned",
		zap.String("handle", c.handle),
		zap.String("job", id),
		zap.String("manager_job", managerID),
	)

	return id, nil
}

func (r *Registry) link(ctx context.Context, c *Container, args []string) (any, error) {
	if len(args) != 1 {
		return nil, newUsageError("link <handle> #jobid")
	}

	managerID, ok := c.job(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, args[0])
	}

	job, err := r.manager.GetJob(managerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, args[0])
	}

	if err := job.Wait(ctx); err != nil {
		return nil, err
	}

	output := job.StreamOutput()
	defer output.Close()

	data, err := io.ReadAll(output)
	if err != nil {
		return nil, fmt.Errorf("read job output: %w", err)
	}

	return &LinkResult{ExitStatus: job.ExitCode(), Output: string(data)}, nil
}

func (r *Registry) run(ctx context.Context, c *Container, args []string) (any, error) {
	if len(args) == 0 {
		return nil, newUsageError("run <handle> cmd")
	}

	id, err := r.spawn(ctx, c, args)
	if err != nil {
		return nil, err
	}

	return r.link(ctx, c, []string{id.(string)})
}

func (r *Registry) net(ctx context.Context, c *Container, args []string) (any, error) {
	if len(args) == 0 {
		return nil, newUsageError("net <handle> in|out")
	}

	switch args[0] {
	case "in":
		return r.netIn(c, args[1:])
	case "out":
		return r.netOut(c, args[1:])
	default:
		return nil, newUsageError("net <handle> in|out")
	}
}

func (r *Registry) netIn(c *Container, args []string) (any, error) {
	if len(args) > 1 {
		return nil, newUsageError("net <handle> in [port]")
	}

	r.mu.Lock()
	hostPort := r.nextPort
	r.nextPort++
	r.mu.Unlock()

	mapping := PortMapping{HostPort: hostPort, ContainerPort: hostPort}

	if len(args) == 1 {
		port, err := parsePort(args[0])
		if err != nil {
			return nil, err
		}

		mapping.ContainerPort = port
	}

	c.mu.Lock()
	c.netIn = append(c.netIn, mapping)
	c.mu.Unlock()

	return &mapping, nil
}

func (r *Registry) netOut(c *Container, args []string) (any, error) {
	if len(args) != 1 {
		return nil, newUsageError("net <handle> out <address[/mask][:port]>")
	}

	if err := validateNetOut(args[0]); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.netOut = append(c.netOut, args[0])
	c.mu.Unlock()

	return "ok", nil
}

func (r *Registry) limit(ctx context.Context, c *Container, args []string) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, newUsageError("limit <handle> mem|disk [<value>]")
	}

	var value *int64

	if len(args) == 2 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || v < 0 {
			return nil, newUsageError("limit <handle> %s [<value>]: value must be a non-negative integer", args[0])
		}

		value = &v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch args[0] {
	case "mem":
		if value != nil {
			if c.cgroup != nil {
				if err := c.cgroup.SetMemoryLimit(*value); err != nil {
					return nil, err
				}
			}

			c.memLimit = *value
		}

		return c.memLimit, nil

	case "disk":
		if value != nil {
			c.diskLimit = *value
		}

		return c.diskLimit, nil

	default:
		return nil, newUsageError("limit <handle> mem|disk [<value>]")
	}
}

func (r *Registry) info(ctx context.Context, c *Container, args []string) (any, error) {
	return c.info(), nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port: %s", s)
	}

	return port, nil
}

// validateNetOut checks rule has the form address[/mask][:port].
func validateNetOut(rule string) error {
	address := rule

	if i := strings.LastIndex(address, ":"); i >= 0 {
		if _, err := parsePort(address[i+1:]); err != nil {
			return err
		}

		address = address[:i]
	}

	if i := strings.Index(address, "/"); i >= 0 {
		mask, err := strconv.Atoi(address[i+1:])
		if err != nil || mask < 0 || mask > 32 {
			return fmt.Errorf("invalid mask: %s", address[i+1:])
		}

		address = address[:i]
	}

	if ip := net.ParseIP(address); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid address: %s", address)
	}

	return nil
}
