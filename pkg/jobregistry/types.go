package jobregistry

import (
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a proof job, derived from the exit status
// of its external proving process.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Job is one tracked invocation of the external proving pipeline.
//
// A job owns exactly one spawned process. Completion is observed by a reaper
// goroutine started at spawn time; Status and ExitCode never block.
type Job struct {
	ID         string
	PID        int
	Mode       string
	Dir        string
	StdoutPath string
	StderrPath string
	CreatedAt  time.Time

	done     chan struct{}
	exitCode atomic.Int64
}

// ExitCode returns the process exit code and whether the process has exited.
func (j *Job) ExitCode() (int, bool) {
	select {
	case <-j.done:
		return int(j.exitCode.Load()), true
	default:
		return 0, false
	}
}

// Status maps the reaped exit state to a lifecycle status.
func (j *Job) Status() Status {
	code, exited := j.ExitCode()
	switch {
	case !exited:
		return StatusInProgress
	case code == 0:
		return StatusCompleted
	default:
		return StatusFailed
	}
}

// Done exposes process completion as a channel for callers that want to wait
// instead of poll.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Metrics holds the optional result metrics read from the job directory.
// A nil latency means the latency file has not been written yet.
type Metrics struct {
	NumInstructions int64
	E2ELatencyMS    *int64
}

// Metrics reads the job's result metrics. Missing files yield zero values,
// never an error.
func (j *Job) Metrics() Metrics {
	return Metrics{
		NumInstructions: ReadInstructionCount(j.Dir),
		E2ELatencyMS:    ReadLatencyMS(j.Dir),
	}
}
