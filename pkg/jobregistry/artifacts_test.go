package jobregistry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestReadLatencyMS(t *testing.T) {
	t.Run("txt variant", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "latency_ms.txt", "123456\n")
		v := ReadLatencyMS(dir)
		require.NotNil(t, v)
		assert.Equal(t, int64(123456), *v)
	})

	t.Run("bare variant", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "latency_ms", "98765")
		v := ReadLatencyMS(dir)
		require.NotNil(t, v)
		assert.Equal(t, int64(98765), *v)
	})

	t.Run("txt variant wins over bare", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "latency_ms.txt", "1")
		writeFile(t, dir, "latency_ms", "2")
		v := ReadLatencyMS(dir)
		require.NotNil(t, v)
		assert.Equal(t, int64(1), *v)
	})

	t.Run("missing yields nil", func(t *testing.T) {
		assert.Nil(t, ReadLatencyMS(t.TempDir()))
	})

	t.Run("garbage yields nil", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "latency_ms.txt", "not a number")
		assert.Nil(t, ReadLatencyMS(dir))
	})
}

func TestReadInstructionCount(t *testing.T) {
	t.Run("plain file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "num_instret", "200000000\n")
		assert.Equal(t, int64(200000000), ReadInstructionCount(dir))
	})

	t.Run("metrics json fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "metrics.json", `[
  {
    "metric": "segment_count",
    "value": 12
  },
  {
    "metric": "execute_metered_insns",
    "value": 987654321
  }
]
`)
		assert.Equal(t, int64(987654321), ReadInstructionCount(dir))
	})

	t.Run("plain file wins over metrics json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "num_instret", "42")
		writeFile(t, dir, "metrics.json", `{"metric": "execute_metered_insns",
"value": 7}`)
		assert.Equal(t, int64(42), ReadInstructionCount(dir))
	})

	t.Run("metric present but no value line", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "metrics.json", `{"metric": "execute_metered_insns",
"unit": "insns"}`)
		assert.Equal(t, int64(0), ReadInstructionCount(dir))
	})

	t.Run("nothing present yields zero", func(t *testing.T) {
		assert.Equal(t, int64(0), ReadInstructionCount(t.TempDir()))
	})

	t.Run("oversized line before the metric", func(t *testing.T) {
		dir := t.TempDir()
		huge := strings.Repeat("x", 2*1024*1024)
		writeFile(t, dir, "metrics.json", `[
  {
    "metric": "debug_dump",
    "value": "`+huge+`"
  },
  {
    "metric": "execute_metered_insns",
    "value": 555
  }
]
`)
		assert.Equal(t, int64(555), ReadInstructionCount(dir))
	})
}

func TestJobMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latency_ms.txt", "5000")
	writeFile(t, dir, "num_instret", "77")

	job := &Job{Dir: dir}
	m := job.Metrics()
	require.NotNil(t, m.E2ELatencyMS)
	assert.Equal(t, int64(5000), *m.E2ELatencyMS)
	assert.Equal(t, int64(77), m.NumInstructions)
}
