package jobregistry

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Result artifact filenames written into the job directory by the external
// proving pipeline. The latency file has carried two names across pipeline
// revisions; both are accepted.
const (
	latencyFileTxt  = "latency_ms.txt"
	latencyFile     = "latency_ms"
	instretFile     = "num_instret"
	metricsFile     = "metrics.json"
	meteredInsnsKey = `"metric": "execute_metered_insns"`
)

// ReadLatencyMS reads the end-to-end latency artifact from dir. Returns nil
// when neither latency file exists or the contents do not parse.
func ReadLatencyMS(dir string) *int64 {
	for _, name := range []string{latencyFileTxt, latencyFile} {
		if v, ok := readIntFile(filepath.Join(dir, name)); ok {
			return &v
		}
	}
	return nil
}

// ReadInstructionCount reads the instruction-retirement count from dir.
// Prefers the plain num_instret file; falls back to scanning metrics.json for
// the execute_metered_insns metric. Absence yields zero.
func ReadInstructionCount(dir string) int64 {
	if v, ok := readIntFile(filepath.Join(dir, instretFile)); ok {
		return v
	}
	return scanMeteredInsns(filepath.Join(dir, metricsFile))
}

func readIntFile(path string) (int64, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// scanMeteredInsns walks metrics.json line by line looking for the metered
// instruction metric; the value appears on the line after the metric name.
// Reads with ReadString so arbitrarily long lines never abort the scan.
func scanMeteredInsns(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReaderSize(f, 64*1024)
	found := false
	for {
		line, err := br.ReadString('\n')
		if found {
			if !strings.Contains(line, `"value"`) {
				return 0
			}
			return digitsIn(line)
		}
		if strings.Contains(line, meteredInsnsKey) {
			found = true
		}
		if err != nil {
			return 0
		}
	}
}

func digitsIn(s string) int64 {
	var sb strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			sb.WriteRune(ch)
		}
	}
	if sb.Len() == 0 {
		return 0
	}
	v, err := strconv.ParseInt(sb.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
