// Package release models upstream Nextcloud releases: version descriptors,
// artifact URL triples and the checksum text format published next to them.
package release

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// Descriptor selects which release to install: either a pinned exact
// version or "latest within major version N". Exactly one is active.
type Descriptor struct {
	exact *goversion.Version
	track int
}

// Pinned returns a descriptor for an exact version like "28.0.4".
func Pinned(v string) (Descriptor, error) {
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return Descriptor{}, &resource.ConfigError{Field: "server.version", Reason: fmt.Sprintf("invalid version %q: %v", v, err)}
	}
	return Descriptor{exact: parsed}, nil
}

// Track returns a descriptor following the latest release within major
// version n.
func Track(n int) (Descriptor, error) {
	if n <= 0 {
		return Descriptor{}, &resource.ConfigError{Field: "server.track", Reason: fmt.Sprintf("invalid major version track %d", n)}
	}
	return Descriptor{track: n}, nil
}

// IsPinned reports whether the descriptor names an exact version.
func (d Descriptor) IsPinned() bool { return d.exact != nil }

// Major returns the major version the descriptor is confined to.
func (d Descriptor) Major() int {
	if d.exact != nil {
		return d.exact.Segments()[0]
	}
	return d.track
}

// Exact returns the pinned version string. Panics if not pinned; callers
// resolve tracking descriptors through a Resolver first.
func (d Descriptor) Exact() string {
	if d.exact == nil {
		panic("release: Exact called on tracking descriptor")
	}
	return d.exact.Original()
}

func (d Descriptor) String() string {
	if d.exact != nil {
		return d.exact.Original()
	}
	return fmt.Sprintf("latest in %d.x", d.track)
}

// Compare parses two version strings and returns -1, 0 or 1.
func Compare(a, b string) (int, error) {
	va, err := goversion.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", a, err)
	}
	vb, err := goversion.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// NormalizeMax widens a partial upper bound so point releases stay eligible:
// "27" becomes "27.999.999" and "27.1" becomes "27.1.999". A fully
// specified bound is returned unchanged.
func NormalizeMax(max string) string {
	switch strings.Count(max, ".") {
	case 0:
		return max + ".999.999"
	case 1:
		return max + ".999"
	}
	return max
}

// WithinMax reports whether candidate does not exceed the (possibly
// partial) upper bound. An empty bound allows everything.
func WithinMax(candidate, max string) (bool, error) {
	if max == "" {
		return true, nil
	}
	cmp, err := Compare(candidate, NormalizeMax(max))
	if err != nil {
		return false, err
	}
	return cmp <= 0, nil
}
