// Package archive unpacks verified release tarballs into an installation
// root. The upstream archives wrap everything in a single top-level
// directory; extraction strips exactly that one component so files land
// directly under the target root.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// Options adjust extraction behavior.
type Options struct {
	// PreserveDirs are directory names directly under the target root that
	// extraction must never write into, e.g. a co-located data directory.
	PreserveDirs []string
}

// Extract unpacks the tar archive at archivePath into targetRoot, stripping
// one leading path component. Entries that would escape targetRoot are
// rejected regardless of what the wrapping directory is called. Compression
// is chosen from the file extension (.tar.bz2, .tar.gz/.tgz, plain .tar).
//
// Extraction is gated by probe and verification and runs at most once per
// target lifetime; it is not itself re-entrant.
func Extract(ctx context.Context, archivePath, targetRoot string, opts Options) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive: %v", resource.ErrExtractionFailed, err)
	}
	defer f.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		reader = bzip2.NewReader(f)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: open gzip stream: %v", resource.ErrExtractionFailed, err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(archivePath, ".tar"):
		reader = f
	default:
		return fmt.Errorf("%w: unsupported archive format %q", resource.ErrExtractionFailed, filepath.Base(archivePath))
	}

	if err := os.MkdirAll(targetRoot, 0o755); err != nil {
		return fmt.Errorf("%w: create target root: %v", resource.ErrExtractionFailed, err)
	}
	absRoot, err := filepath.Abs(targetRoot)
	if err != nil {
		return fmt.Errorf("%w: resolve target root: %v", resource.ErrExtractionFailed, err)
	}

	tr := tar.NewReader(reader)
	extracted := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", resource.ErrExtractionFailed, ctx.Err())
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read archive: %v", resource.ErrExtractionFailed, err)
		}

		rel, ok := stripComponent(hdr.Name)
		if !ok {
			continue // the wrapping directory itself
		}
		if skipPreserved(rel, opts.PreserveDirs) {
			continue
		}

		dest, err := securePath(absRoot, rel)
		if err != nil {
			return fmt.Errorf("%w: %v", resource.ErrExtractionFailed, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return fmt.Errorf("%w: create dir %s: %v", resource.ErrExtractionFailed, rel, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return fmt.Errorf("%w: write %s: %v", resource.ErrExtractionFailed, rel, err)
			}
			extracted++
		case tar.TypeSymlink:
			if err := secureSymlink(absRoot, dest, hdr.Linkname); err != nil {
				return fmt.Errorf("%w: %v", resource.ErrExtractionFailed, err)
			}
		default:
			// Hard links, devices etc. do not appear in release tarballs.
			return fmt.Errorf("%w: unexpected entry type %d for %s", resource.ErrExtractionFailed, hdr.Typeflag, rel)
		}
	}

	if extracted == 0 {
		return fmt.Errorf("%w: archive contained no files under its top-level directory", resource.ErrExtractionFailed)
	}
	return nil
}

// stripComponent removes the first path element. Returns ok=false for the
// top-level wrapper entry itself.
func stripComponent(name string) (string, bool) {
	name = strings.TrimPrefix(cleanName(name), "/")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return "", false
	}
	rel := name[idx+1:]
	if rel == "" || rel == "." {
		return "", false
	}
	return rel, true
}

// cleanName normalizes tar entry names, which always use forward slashes.
func cleanName(name string) string {
	return strings.TrimSuffix(strings.ReplaceAll(name, "\\", "/"), "/")
}

func skipPreserved(rel string, preserved []string) bool {
	first := rel
	if idx := strings.IndexByte(rel, '/'); idx >= 0 {
		first = rel[:idx]
	}
	for _, p := range preserved {
		if first == p {
			return true
		}
	}
	return false
}

// securePath joins rel onto root and verifies the result stays inside it.
func securePath(root, rel string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes target root", rel)
	}
	return dest, nil
}

// secureSymlink creates a symlink after verifying the link target cannot
// point outside the target root.
func secureSymlink(root, dest, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %s has absolute target %q", dest, linkname)
	}
	resolved := filepath.Join(filepath.Dir(dest), linkname)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return fmt.Errorf("symlink %s target %q escapes target root", dest, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Symlink(linkname, dest); err != nil {
		return err
	}
	return nil
}

func writeFile(dest string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
