package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ncsteward/ncsteward/pkg/occ"
	"github.com/ncsteward/ncsteward/pkg/release"
	"github.com/ncsteward/ncsteward/pkg/resource"
)

// UpdateCheck is what the application's update channel currently offers.
type UpdateCheck struct {
	// ServerUpdate is the offered server version, empty when none.
	ServerUpdate string
	// Apps maps app names to their offered versions.
	Apps map[string]string
}

// Available reports whether anything can be updated.
func (u UpdateCheck) Available() bool {
	return u.ServerUpdate != "" || len(u.Apps) > 0
}

var (
	serverUpdatePattern = regexp.MustCompile(`Nextcloud ([\d.]+) is available`)
	appUpdatePattern    = regexp.MustCompile(`Update for (.+?) to version (\S+?) is available\.?`)
	updateCountPattern  = regexp.MustCompile(`(\d+) updates? available`)
)

// UpdateCheck asks the update channel what is available. The reported count
// is cross-checked against what was actually parsed; a mismatch means the
// output format drifted and silently missing an update is worse than failing.
func (s *Server) UpdateCheck(ctx context.Context) (UpdateCheck, error) {
	out, err := s.cli.Occ(ctx, occ.Command{Name: "update:check"})
	if err != nil {
		return UpdateCheck{}, err
	}

	result := UpdateCheck{Apps: make(map[string]string)}
	if m := serverUpdatePattern.FindStringSubmatch(out.Stdout); m != nil {
		result.ServerUpdate = m[1]
	}
	for _, m := range appUpdatePattern.FindAllStringSubmatch(out.Stdout, -1) {
		result.Apps[m[1]] = m[2]
	}

	if m := updateCountPattern.FindStringSubmatch(out.Stdout); m != nil {
		count, _ := strconv.Atoi(m[1])
		parsed := len(result.Apps)
		if result.ServerUpdate != "" {
			parsed++
		}
		if parsed != count {
			return result, fmt.Errorf("update:check reported %d updates but %d were recognized, output was:\n%s", count, parsed, out.Stdout)
		}
	}
	return result, nil
}

// IsUptodate reports whether the installation is as new as the bound allows:
// true when no update is offered, or when the offered version lies beyond
// maxVersion. An empty maxVersion accepts any offered update.
func (s *Server) IsUptodate(ctx context.Context, maxVersion string) (bool, error) {
	check, err := s.UpdateCheck(ctx)
	if err != nil {
		return false, err
	}
	if check.ServerUpdate == "" {
		return true, nil
	}
	if maxVersion == "" {
		return false, nil
	}
	within, err := release.WithinMax(check.ServerUpdate, maxVersion)
	if err != nil {
		return false, err
	}
	return !within, nil
}

// UpdaterPath returns the expected location of the bundled updater.
func (s *Server) UpdaterPath() string {
	return filepath.Join(s.cli.Webroot(), "updater", "updater.phar")
}

// Upgrade runs the bundled updater non-interactively. It refuses to start
// while the compatibility checkpoint is failing; upgrading a broken
// installation compounds the damage. The checkpoint is re-validated after.
func (s *Server) Upgrade(ctx context.Context) error {
	if _, err := os.Stat(s.UpdaterPath()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: '%s' does not exist, cannot upgrade", resource.ErrUpgradeFailed, s.UpdaterPath())
		}
		return fmt.Errorf("stat %s: %w", s.UpdaterPath(), err)
	}

	ok, detail, err := s.Check(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: refusing to upgrade while the compatibility check fails: %s", resource.ErrCheckpointUnsatisfied, detail)
	}

	s.log.Info("running updater", "path", s.UpdaterPath())
	if _, err := s.cli.PHPFile(ctx, "updater/updater.phar", "--no-interaction"); err != nil {
		return fmt.Errorf("%w: %v", resource.ErrUpgradeFailed, err)
	}

	ok, detail, err = s.Check(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: compatibility check failing after upgrade: %s", resource.ErrUpgradeFailed, detail)
	}
	return nil
}

// FinishUpgrade runs the database migration step after new code is in place.
func (s *Server) FinishUpgrade(ctx context.Context) error {
	_, err := s.cli.Occ(ctx, occ.Command{Name: "upgrade"})
	if err != nil {
		return fmt.Errorf("%w: %v", resource.ErrUpgradeFailed, err)
	}
	return nil
}

// SetBackgroundJobs selects the background job execution mode.
func (s *Server) SetBackgroundJobs(ctx context.Context, mode string) error {
	_, err := s.cli.Occ(ctx, occ.Command{Name: "background:" + mode})
	return err
}

// BackgroundJobsMode reads the configured background job mode. The store
// answers "ajax" when nothing was ever set, matching the application default.
func (s *Server) BackgroundJobsMode(ctx context.Context) (string, error) {
	out, err := s.cli.Occ(ctx, occ.Command{
		Name:        "config:app:get",
		Args:        []string{"core", "backgroundjobs_mode"},
		ExpectError: true, // non-zero means the key was never set
	})
	if err != nil {
		return "", err
	}
	if out.Code != 0 {
		return "ajax", nil
	}
	mode := out.Stdout
	for len(mode) > 0 && (mode[len(mode)-1] == '\n' || mode[len(mode)-1] == '\r') {
		mode = mode[:len(mode)-1]
	}
	if mode == "" {
		mode = "ajax"
	}
	return mode, nil
}
