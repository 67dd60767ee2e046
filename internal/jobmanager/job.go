package jobmanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/nixpig/wardensh/internal/jobmanager/cgroups"
	"github.com/nixpig/wardensh/internal/jobmanager/output"
)

// JobConfig describes the process run by a Job.
type JobConfig struct {
	Program string
	Args    []string

	// Dir is the working directory of the process. Empty means the current
	// directory of the caller.
	Dir string

	// Cgroup, if set, is the cgroup the process is placed in.
	Cgroup *cgroups.Cgroup
}

// Job represents a process executed using exec.Cmd. It provides management of
// the Job's lifecycle and safe concurrent streaming of the process' combined
// stdout/stderr.
type Job struct {
	id          string
	state       AtomicJobState
	interrupted atomic.Bool

	cmd            *exec.Cmd
	cgroup         *cgroups.Cgroup
	processState   atomic.Pointer[os.ProcessState]
	outputStreamer *output.Streamer
	pipeWriter     io.WriteCloser

	done chan struct{}
}

// JobStatus represents the status of a Job, including its state, exit code,
// and whether its execution was interrupted.
type JobStatus struct {
	State       JobState
	ExitCode    int
	Interrupted bool
}

// NewJob creates a new Job with the given id and config. It configures an
// output.Streamer for concurrent streaming of process output.
func NewJob(id string, config *JobConfig) (*Job, error) {
	if config == nil || config.Program == "" {
		return nil, fmt.Errorf("program cannot be empty")
	}

	cmd := exec.Command(config.Program, config.Args...)
	cmd.Dir = config.Dir

	// NOTE: The process leads its own group so Stop also reaches anything it
	// started in the background.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if config.Cgroup != nil {
		if fd := config.Cgroup.FD(); fd != nil {
			cmd.SysProcAttr.UseCgroupFD = true
			cmd.SysProcAttr.CgroupFD = int(fd.Fd())
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create os pipe: %w", err)
	}

	cmd.Stdout = pw
	cmd.Stderr = pw

	done := make(chan struct{})

	j := &Job{
		id:             id,
		cmd:            cmd,
		cgroup:         config.Cgroup,
		outputStreamer: output.NewStreamer(pr, done),
		pipeWriter:     pw,
		done:           done,
	}

	j.state.Store(JobStateCreated)

	return j, nil
}

// Start starts the Job. Trying to start a Job that is not in JobStateCreated
// returns an InvalidStateError.
func (j *Job) Start() error {
	if !j.state.CompareAndSwap(JobStateCreated, JobStateStarting) {
		return NewInvalidStateError(j.state.Load(), JobStateStarting)
	}

	if err := j.cmd.Start(); err != nil {
		j.state.Store(JobStateFailed)

		j.pipeWriter.Close()
		close(j.done)

		return fmt.Errorf("failed to start process: %w", err)
	}

	j.pipeWriter.Close()

	// Without a cgroup fd the process joins after it has started.
	if j.cgroup != nil && j.cgroup.FD() == nil {
		if err := j.cgroup.Join(j.cmd.Process.Pid); err != nil {
			j.cmd.Process.Kill()
			j.cmd.Wait()

			j.state.Store(JobStateFailed)
			close(j.done)

			return err
		}
	}

	j.state.Store(JobStateStarted)

	go func() {
		j.cmd.Wait()

		j.processState.Store(j.cmd.ProcessState)
		j.state.Store(JobStateStopped)

		close(j.done)
	}()

	return nil
}

// Stop stops the Job. Trying to stop a Job that is not in JobStateStarted
// returns an InvalidStateError.
func (j *Job) Stop() error {
	if !j.state.CompareAndSwap(JobStateStarted, JobStateStopping) {
		return NewInvalidStateError(j.state.Load(), JobStateStopping)
	}

	j.interrupted.Store(true)

	if err := syscall.Kill(-j.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return j.cmd.Process.Kill()
	}

	return nil
}

// Wait blocks until the Job has completed or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the ID of the Job.
func (j *Job) ID() string {
	return j.id
}

// State returns the state of the Job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Interrupted returns whether the Job interrupted execution of the process.
func (j *Job) Interrupted() bool {
	return j.interrupted.Load()
}

// ExitCode returns the exit code of the process or -1 if the process hasn't
// exited or was interrupted.
func (j *Job) ExitCode() int {
	ps := j.processState.Load()
	if ps == nil {
		return -1
	}

	return ps.ExitCode()
}

// StreamOutput returns an io.ReadCloser of output from the Job.
//
// Read returns all output since the Job started and blocks waiting for new
// output until the Job has completed.
func (j *Job) StreamOutput() io.ReadCloser {
	return j.outputStreamer.Subscribe()
}

// Done returns a channel that is closed when the Job has completed, either
// because the process exited or because it failed to start.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the status of the Job.
func (j *Job) Status() *JobStatus {
	return &JobStatus{
		State:       j.state.Load(),
		ExitCode:    j.ExitCode(),
		Interrupted: j.interrupted.Load(),
	}
}
