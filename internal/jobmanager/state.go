package jobmanager

import "sync/atomic"

type JobState int

const (
	// JobStateUnknown is the zero value.
	JobStateUnknown JobState = iota

	// JobStateCreated indicates the job is configured and can be started.
	JobStateCreated

	// JobStateStarting indicates Start has been called but the process has
	// not started yet.
	JobStateStarting

	// JobStateStarted indicates the process is running. The job can be
	// stopped.
	JobStateStarted

	// JobStateStopping indicates the process has been killed but has not
	// been reaped yet.
	JobStateStopping

	// JobStateStopped indicates the process has exited. Its exit code is
	// available.
	JobStateStopped

	// JobStateFailed indicates the process could not be started, or could
	// not be placed in its container's cgroup.
	JobStateFailed
)

// NOTE: Keep in sync with the JobState values above.
var jobStates = []string{
	"Unknown",
	"Created",
	"Starting",
	"Started",
	"Stopping",
	"Stopped",
	"Failed",
}

func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// AtomicJobState holds a JobState that is read and transitioned without a
// lock. Transitions use CompareAndSwap so only one caller wins a race to
// start or stop a job.
type AtomicJobState struct {
	v atomic.Int32
}

func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
