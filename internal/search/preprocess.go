package search

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
)

// PrepareMarkdownInMemory reads the FAQ Markdown at path and flattens any
// table rows into plain lines (see FlattenTables). If the file has no tables
// it returns the original bytes.
func PrepareMarkdownInMemory(path string) ([]byte, error) {
	orig, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, changed, err := FlattenTables(bytes.NewReader(orig))
	if err != nil {
		return nil, err
	}
	if !changed {
		return orig, nil
	}
	return out, nil
}

// FlattenTables rewrites Markdown table rows as "cell - cell - cell" lines,
// drops header separator rows, and keeps every other line unchanged.
// A table row is followed by a blank line so each row indexes as its own
// paragraph in heading-less documents. changed reports whether any table was seen.
func FlattenTables(r io.Reader) (out []byte, changed bool, err error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		if !(strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1) {
			b.WriteString(strings.TrimRight(raw, " \t\r"))
			b.WriteByte('\n')
			continue
		}

		changed = true
		cols := strings.Split(strings.Trim(line, "|"), "|")
		cells := make([]string, 0, len(cols))
		sep := true
		for _, c := range cols {
			cell := strings.TrimSpace(c)
			if strings.Trim(cell, ":- ") != "" {
				sep = false
			}
			if cell != "" {
				cells = append(cells, cell)
			}
		}
		if sep || len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, " - "))
		b.WriteString("\n\n")
	}
	if err := sc.Err(); err != nil {
		return nil, false, err
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), changed, nil
}
