package jobregistry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for unknown job identifiers.
var ErrNotFound = errors.New("job not found")

// ModeProveStark is the mode label applied to jobs started through the HTTP
// control surface.
const ModeProveStark = "prove-stark"

// Registry is the process-wide map of job id to job handle.
//
// The registry is purely in memory: entries live until process restart and
// are never evicted. StartOrGet serializes its check-then-spawn-then-insert
// sequence so concurrent starts for the same id launch at most one process.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	invoker *Invoker
}

func NewRegistry(invoker *Invoker) *Registry {
	return &Registry{
		jobs:    make(map[string]*Job),
		invoker: invoker,
	}
}

// StartOrGet returns the live job for jobID if one exists, otherwise spawns a
// new proving process and registers it. started reports whether this call
// spawned the process. An entry whose process has exited is replaced.
func (r *Registry) StartOrGet(jobID string) (*Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, false, fmt.Errorf("job id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[jobID]; ok {
		if existing.Status() == StatusInProgress {
			return existing, false, nil
		}
	}

	jobDir := r.invoker.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, false, fmt.Errorf("create job dir: %w", err)
	}

	stdoutPath := filepath.Join(jobDir, "stdout.log")
	stderrPath := filepath.Join(jobDir, "stderr.log")

	job, err := r.invoker.Invoke(jobID, ModeProveStark, jobDir, stdoutPath, stderrPath, jobID)
	if err != nil {
		// Registry is left untouched on invocation failure.
		return nil, false, err
	}

	r.jobs[jobID] = job
	return job, true, nil
}

// Get returns the job for jobID, or ErrNotFound.
func (r *Registry) Get(jobID string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[strings.TrimSpace(jobID)]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Len reports the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
