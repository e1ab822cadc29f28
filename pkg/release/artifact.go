package release

import (
	"strings"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// DefaultArchiveTemplate is the upstream release download location.
// The {version} placeholder is substituted with the resolved version.
const DefaultArchiveTemplate = "https://download.nextcloud.com/server/releases/nextcloud-{version}.tar.bz2"

// Artifact is the (archive, checksum, detached signature) URL triple for one
// release. All three are derived from a single template and version, so they
// cannot reference different releases.
type Artifact struct {
	Version      string
	ArchiveURL   string
	ChecksumURL  string
	SignatureURL string
}

// Source resolves versions into artifact URL triples.
type Source struct {
	archiveTemplate string
}

// NewSource creates a Source from an archive URL template. An empty
// template uses the upstream default. The template must contain a
// {version} placeholder.
func NewSource(archiveTemplate string) (Source, error) {
	if archiveTemplate == "" {
		archiveTemplate = DefaultArchiveTemplate
	}
	if !strings.Contains(archiveTemplate, "{version}") {
		return Source{}, &resource.ConfigError{
			Field:  "server.source.archive_url",
			Reason: "template must contain a {version} placeholder",
		}
	}
	return Source{archiveTemplate: archiveTemplate}, nil
}

// Artifact builds the URL triple for one version. The checksum and the
// detached signature are published beside the archive with fixed suffixes.
func (s Source) Artifact(version string) Artifact {
	archive := strings.ReplaceAll(s.archiveTemplate, "{version}", version)
	return Artifact{
		Version:      version,
		ArchiveURL:   archive,
		ChecksumURL:  archive + ".sha256",
		SignatureURL: archive + ".asc",
	}
}

// ArchiveName returns the file name component of the archive URL.
func (a Artifact) ArchiveName() string {
	idx := strings.LastIndex(a.ArchiveURL, "/")
	return a.ArchiveURL[idx+1:]
}
