package warden

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/nixpig/wardensh/internal/jobmanager/cgroups"
)

const (
	StateActive  = "active"
	StateStopped = "stopped"
)

// PortMapping is an inbound port forwarded to a container.
type PortMapping struct {
	HostPort      int `json:"host_port"`
	ContainerPort int `json:"container_port"`
}

// Container is the bookkeeping for one container. Only its working
// directory, its jobs and, when enabled, its cgroup are real.
type Container struct {
	handle  string
	dir     string
	cgroup  *cgroups.Cgroup
	created time.Time

	state     string
	jobs      map[string]string
	nextJob   int
	netIn     []PortMapping
	netOut    []string
	diskLimit int64
	memLimit  int64

	mu sync.Mutex
}

// Info describes a container as returned by the info verb.
type Info struct {
	Handle      string        `json:"handle"`
	State       string        `json:"state"`
	Path        string        `json:"container_path"`
	Created     string        `json:"created"`
	Jobs        []string      `json:"jobs"`
	MemoryLimit int64         `json:"memory_limit"`
	DiskLimit   int64         `json:"disk_limit"`
	NetIn       []PortMapping `json:"net_in"`
	NetOut      []string      `json:"net_out"`
}

func (c *Container) addJob(managerID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextJob++
	id := strconv.Itoa(c.nextJob)
	c.jobs[id] = managerID

	return id
}

func (c *Container) job(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	managerID, ok := c.jobs[id]

	return managerID, ok
}

func (c *Container) managerJobs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.jobs))
	for _, id := range c.jobs {
		ids = append(ids, id)
	}

	return ids
}

func (c *Container) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateStopped
}

func (c *Container) info() *Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		jobs = append(jobs, id)
	}

	slices.SortFunc(jobs, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)

		return x - y
	})

	return &Info{
		Handle:      c.handle,
		State:       c.state,
		Path:        c.dir,
		Created:     c.created.UTC().Format(time.RFC3339),
		Jobs:        jobs,
		MemoryLimit: c.memLimit,
		DiskLimit:   c.diskLimit,
		NetIn:       append([]PortMapping{}, c.netIn...),
		NetOut:      append([]string{}, c.netOut...),
	}
}
