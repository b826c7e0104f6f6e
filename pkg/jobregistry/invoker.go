package jobregistry

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrScriptNotFound is returned when the external proving script is missing
// at its configured location. It is checked before spawning so callers see a
// clear invocation error instead of a process-exit failure.
var ErrScriptNotFound = errors.New("prove script not found")

// Invoker spawns the external proving script for a job, redirecting the
// child's stdout and stderr to per-job log files.
type Invoker struct {
	script   string
	jobsRoot string
}

func NewInvoker(script, jobsRoot string) *Invoker {
	return &Invoker{
		script:   strings.TrimSpace(script),
		jobsRoot: strings.TrimSpace(jobsRoot),
	}
}

func (inv *Invoker) Script() string   { return inv.script }
func (inv *Invoker) JobsRoot() string { return inv.jobsRoot }

// JobDir returns the working directory for a job id.
func (inv *Invoker) JobDir(jobID string) string {
	return filepath.Join(inv.jobsRoot, jobID)
}

// CheckScript verifies the proving script exists. Used by health checks as
// well as the spawn path.
func (inv *Invoker) CheckScript() error {
	if inv.script == "" {
		return fmt.Errorf("%w: script path is empty", ErrScriptNotFound)
	}
	if _, err := os.Stat(inv.script); err != nil {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, inv.script)
	}
	return nil
}

// Invoke spawns the proving script with the given arguments, redirecting its
// streams to stdoutPath and stderrPath. It returns a non-blocking Job handle
// immediately; a reaper goroutine waits on the child, records the exit code,
// and closes both redirect files so long-running servers do not leak
// descriptors.
func (inv *Invoker) Invoke(jobID, mode, jobDir, stdoutPath, stderrPath string, args ...string) (*Job, error) {
	if err := inv.CheckScript(); err != nil {
		return nil, err
	}

	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(stderrPath)
	if err != nil {
		_ = stdoutFile.Close()
		return nil, fmt.Errorf("create stderr log: %w", err)
	}

	cmd := exec.Command(inv.script, args...)
	cmd.Dir = jobDir
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, fmt.Errorf("start prove script: %w", err)
	}

	job := &Job{
		ID:         jobID,
		PID:        cmd.Process.Pid,
		Mode:       mode,
		Dir:        jobDir,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
		CreatedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}

	go reap(job, cmd, stdoutFile, stderrFile)

	return job, nil
}

// reap waits for the child, records its exit code, and releases the log file
// handles. Runs exactly once per spawned process.
func reap(job *Job, cmd *exec.Cmd, files ...*os.File) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			// Wait itself failed (not a non-zero exit); treat as failure.
			code = -1
		}
	}
	job.exitCode.Store(int64(code))
	for _, f := range files {
		_ = f.Close()
	}
	close(job.done)
}
