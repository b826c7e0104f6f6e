package jobregistry

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// TailLines returns the last n lines of the file at path, most recent last.
// A missing file yields an empty slice; n <= 0 yields an empty slice.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	lines, err := tailLines(f, n)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// tailLines keeps a ring of the last n lines while reading once. Lines are
// read with ReadString rather than a Scanner so an oversized line (a prover
// dumping a proof blob to stdout) is returned whole instead of failing the
// whole tail.
func tailLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]string, 0, n)
	push := func(line string) {
		if len(buf) < n {
			buf = append(buf, line)
			return
		}
		copy(buf, buf[1:])
		buf[n-1] = line
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			push(line)
		}
		if err == io.EOF {
			return buf, nil
		}
	}
}
