package jobregistry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "prove_block.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return script
}

func newTestRegistry(t *testing.T, scriptBody string) *Registry {
	t.Helper()
	return NewRegistry(NewInvoker(writeScript(t, scriptBody), t.TempDir()))
}

func waitExit(t *testing.T, job *Job) int {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit in time")
	}
	code, exited := job.ExitCode()
	require.True(t, exited)
	return code
}

func TestStartOrGet_SpawnsOnce(t *testing.T) {
	r := newTestRegistry(t, "sleep 30")

	job, started, err := r.StartOrGet("abc-123")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Greater(t, job.PID, 0)
	assert.Equal(t, ModeProveStark, job.Mode)
	assert.True(t, strings.HasSuffix(job.Dir, "abc-123"))

	again, startedAgain, err := r.StartOrGet("abc-123")
	require.NoError(t, err)
	assert.False(t, startedAgain)
	assert.Equal(t, job.PID, again.PID)
}

func TestStartOrGet_ConcurrentStartsSpawnOneProcess(t *testing.T) {
	r := newTestRegistry(t, "sleep 30")

	const workers = 8
	var wg sync.WaitGroup
	startedCount := make(chan bool, workers)
	pids := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, started, err := r.StartOrGet("same-id")
			require.NoError(t, err)
			startedCount <- started
			pids <- job.PID
		}()
	}
	wg.Wait()
	close(startedCount)
	close(pids)

	spawned := 0
	for s := range startedCount {
		if s {
			spawned++
		}
	}
	assert.Equal(t, 1, spawned, "exactly one caller must spawn the process")

	first := -1
	for pid := range pids {
		if first == -1 {
			first = pid
		}
		assert.Equal(t, first, pid, "all callers must observe the same pid")
	}
}

func TestStartOrGet_ReplacesDeadEntry(t *testing.T) {
	r := newTestRegistry(t, "exit 0")

	job, started, err := r.StartOrGet("job-1")
	require.NoError(t, err)
	require.True(t, started)
	waitExit(t, job)

	replacement, started, err := r.StartOrGet("job-1")
	require.NoError(t, err)
	assert.True(t, started, "a dead entry must be replaced by a fresh spawn")
	assert.NotEqual(t, job.PID, replacement.PID)
}

func TestStartOrGet_MissingScript(t *testing.T) {
	r := NewRegistry(NewInvoker(filepath.Join(t.TempDir(), "nope.sh"), t.TempDir()))

	_, _, err := r.StartOrGet("job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScriptNotFound))

	// Invocation failure must not mutate the registry.
	assert.Equal(t, 0, r.Len())
	_, err = r.Get("job-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStartOrGet_EmptyID(t *testing.T) {
	r := newTestRegistry(t, "exit 0")
	_, _, err := r.StartOrGet("  ")
	require.Error(t, err)
}

func TestJobStatusLifecycle(t *testing.T) {
	t.Run("in progress while running", func(t *testing.T) {
		r := newTestRegistry(t, "sleep 30")
		job, _, err := r.StartOrGet("running")
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, job.Status())
	})

	t.Run("completed on exit zero", func(t *testing.T) {
		r := newTestRegistry(t, "exit 0")
		job, _, err := r.StartOrGet("ok")
		require.NoError(t, err)
		assert.Equal(t, 0, waitExit(t, job))
		assert.Equal(t, StatusCompleted, job.Status())
	})

	t.Run("failed on non-zero exit", func(t *testing.T) {
		r := newTestRegistry(t, "exit 3")
		job, _, err := r.StartOrGet("bad")
		require.NoError(t, err)
		assert.Equal(t, 3, waitExit(t, job))
		assert.Equal(t, StatusFailed, job.Status())
	})
}

func TestGet_UnknownID(t *testing.T) {
	r := newTestRegistry(t, "exit 0")
	_, err := r.Get("never-seen")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvoker_RedirectsStreams(t *testing.T) {
	r := newTestRegistry(t, `echo from-stdout
echo from-stderr 1>&2`)

	job, _, err := r.StartOrGet("streams")
	require.NoError(t, err)
	waitExit(t, job)

	stdout, err := os.ReadFile(job.StdoutPath)
	require.NoError(t, err)
	assert.Equal(t, "from-stdout\n", string(stdout))

	stderr, err := os.ReadFile(job.StderrPath)
	require.NoError(t, err)
	assert.Equal(t, "from-stderr\n", string(stderr))
}

func TestInvoker_PassesJobIDArgument(t *testing.T) {
	r := newTestRegistry(t, `echo "$1"`)

	job, _, err := r.StartOrGet("uuid-42")
	require.NoError(t, err)
	waitExit(t, job)

	stdout, err := os.ReadFile(job.StdoutPath)
	require.NoError(t, err)
	assert.Equal(t, "uuid-42\n", string(stdout))
}
