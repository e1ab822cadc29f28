package release

import (
	"bufio"
	"fmt"
	"strings"
)

// ParseChecksum extracts the hex digest for filename from a hash-per-file
// text document ("<digest>  <name>" per line, the sha256sum format).
// A document with a single entry and no name column is accepted too, since
// some mirrors publish the bare digest.
func ParseChecksum(doc, filename string) (string, error) {
	var bare string
	lines := 0

	sc := bufio.NewScanner(strings.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++
		fields := strings.Fields(line)
		if len(fields) == 1 {
			bare = fields[0]
			continue
		}
		// sha256sum marks binary mode with a leading '*'.
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		if name == filename {
			return strings.ToLower(fields[0]), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan checksum document: %w", err)
	}

	if bare != "" && lines == 1 {
		return strings.ToLower(bare), nil
	}
	return "", fmt.Errorf("no checksum entry for %q", filename)
}
