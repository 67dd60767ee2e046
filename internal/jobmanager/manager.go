package jobmanager

import (
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Manager is responsible for creating and managing Jobs.
type Manager struct {
	// NOTE: Currently this is a map of the concrete implementation of Job, which
	// is fine for now, since we only have one kind of Job.
	jobs map[string]*Job

	mu sync.Mutex
}

// NewManager creates a new Manager ready to run Jobs.
func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

// RunJob creates and starts a new Job from config. It returns the Job's
// unique ID.
func (m *Manager) RunJob(config *JobConfig) (string, error) {
	id := uuid.NewString()

	job, err := NewJob(id, config)
	if err != nil {
		return "", err
	}

	if err := job.Start(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return id, nil
}

// StopJob stops the Job with the given id or returns ErrJobNotFound if it
// doesn't exist.
func (m *Manager) StopJob(id string) error {
	job, err := m.GetJob(id)
	if err != nil {
		return err
	}

	return job.Stop()
}

// QueryJob returns the status of the Job with the given id or ErrJobNotFound
// if it doesn't exist.
func (m *Manager) QueryJob(id string) (*JobStatus, error) {
	job, err := m.GetJob(id)
	if err != nil {
		return nil, err
	}

	return job.Status(), nil
}

// StreamJobOutput returns an io.ReadCloser of output from the Job with the
// given id or ErrJobNotFound if it doesn't exist.
//
// Read will return all output since the Job started and block waiting for new
// output.
func (m *Manager) StreamJobOutput(id string) (io.ReadCloser, error) {
	job, err := m.GetJob(id)
	if err != nil {
		return nil, err
	}

	return job.StreamOutput(), nil
}

// RemoveJob stops the Job with the given id if it is still running, waits
// for it to complete and forgets it.
func (m *Manager) RemoveJob(id string) error {
	m.mu.Lock()
	job, exists := m.jobs[id]
	delete(m.jobs, id)
	m.mu.Unlock()

	if !exists {
		return ErrJobNotFound
	}

	if job.State() == JobStateStarted {
		// Best effort: the job may exit on its own in the meantime.
		job.Stop()
	}

	<-job.Done()

	return nil
}

// Shutdown makes a 'best effort' attempt to stop any running Jobs managed by
// the Manager and waits for them to complete.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	jobs := slices.Collect(maps.Values(m.jobs))
	m.mu.Unlock()

	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Go(func() {
			if job.State() == JobStateStarted {
				// NOTE: Not attempting graceful shutdown, so Stop is best effort
				// and errors are ignored.
				job.Stop()
			}

			<-job.Done()
		})
	}

	wg.Wait()
}

// GetJob returns the Job with the given id or ErrJobNotFound if it doesn't
// exist.
func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.Lock()
	job, exists := m.jobs[id]
	m.mu.Unlock()

	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}
