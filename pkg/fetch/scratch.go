// Package fetch implements the acquisition and verification pipeline:
// download a release artifact and its detached signature into a run-scoped
// scratch area, verify integrity and authenticity against a pinned trust
// anchor, and only then hand the artifact to extraction.
package fetch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is an ephemeral directory owned by one pipeline invocation.
// It holds unverified downloads and is purged on success (after extraction)
// and on every verification failure. It is deliberately left in place on
// unrelated errors such as an interrupted download, so an operator can
// inspect what was fetched.
type Scratch struct {
	dir string
}

// NewScratch creates a fresh scratch directory under base. An empty base
// uses the system temp directory.
func NewScratch(base string) (*Scratch, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o700); err != nil {
			return nil, fmt.Errorf("create scratch base: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, "ncsteward-fetch-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch area: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string { return s.dir }

// Path returns the location for a named file inside the scratch area.
func (s *Scratch) Path(name string) string { return filepath.Join(s.dir, name) }

// Purge removes the scratch area and everything in it.
func (s *Scratch) Purge() error {
	return os.RemoveAll(s.dir)
}
