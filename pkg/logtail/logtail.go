// Package logtail reads the last N lines of a file without loading the
// whole thing, for tailing job stdout/stderr capture files from the
// console.
package logtail

import (
	"os"
	"strings"
)

const blockSize = 8192

// LastLines returns up to n trailing lines of the file at path.
// A missing file is not an error; ok reports whether the file existed.
func LastLines(path string, n int) (lines []string, ok bool, err error) {
	if n <= 0 {
		n = 50
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, true, err
	}
	size := st.Size()
	if size == 0 {
		return nil, true, nil
	}

	// Read backwards in blocks until we have enough newlines.
	var data []byte
	pos := size
	for pos > 0 && countLines(data) <= n {
		rd := int64(blockSize)
		if pos < rd {
			rd = pos
		}
		pos -= rd
		buf := make([]byte, rd)
		if _, err := f.ReadAt(buf, pos); err != nil {
			return nil, true, err
		}
		data = append(buf, data...)
	}

	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, true, nil
}

func countLines(b []byte) int {
	c := 0
	for _, ch := range b {
		if ch == '\n' {
			c++
		}
	}
	return c
}
