// Package server probes and drives the lifecycle of one installation: its
// install state, the compatibility checkpoint, one-shot initialization in
// its three variants, and bounded upgrades.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ncsteward/ncsteward/pkg/occ"
)

// Status is the application's own report of its state.
type Status struct {
	Installed      bool   `json:"installed"`
	Version        string `json:"version"`
	VersionString  string `json:"versionstring"`
	Edition        string `json:"edition"`
	Maintenance    bool   `json:"maintenance"`
	NeedsDBUpgrade bool   `json:"needsDbUpgrade"`
}

// Server wraps an occ client with lifecycle operations.
type Server struct {
	cli *occ.Client
	log *slog.Logger
}

// New creates a Server over an occ client.
func New(cli *occ.Client, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cli: cli, log: log}
}

// Client exposes the underlying occ client for configuration work.
func (s *Server) Client() *occ.Client { return s.cli }

// Status asks the application to report its state.
func (s *Server) Status(ctx context.Context) (Status, error) {
	out, err := s.cli.Occ(ctx, occ.Command{Name: "status", JSON: true})
	if err != nil {
		return Status{}, err
	}
	raw, err := json.Marshal(out.Parsed)
	if err != nil {
		return Status{}, fmt.Errorf("status: reencode output: %w", err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, fmt.Errorf("status: decode output: %w", err)
	}
	return st, nil
}

// IsInstalled reports whether the application is initialized. A missing
// control script short-circuits to false without touching the application,
// since asking it would only produce a confusing error.
func (s *Server) IsInstalled(ctx context.Context) (bool, error) {
	present, err := s.cli.ScriptPresent()
	if err != nil || !present {
		return false, err
	}
	st, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.Installed, nil
}

// Check runs the compatibility checkpoint. A non-zero exit is the check's
// answer, not an invocation failure, so it is reported rather than returned
// as an error.
func (s *Server) Check(ctx context.Context) (bool, string, error) {
	out, err := s.cli.Occ(ctx, occ.Command{Name: "check", ExpectError: true})
	if err != nil {
		return false, "", err
	}
	detail := strings.TrimSpace(out.Stdout + "\n" + out.Stderr)
	return out.Code == 0, detail, nil
}

// Version returns the running version as the application reports it.
func (s *Server) Version(ctx context.Context) (string, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return "", err
	}
	return st.Version, nil
}

const versionScript = `require "./version.php"; echo json_encode(implode(".", $OC_Version));`

// VersionRaw reads the version straight from version.php, bypassing the
// control script. It keeps working while the application is mid-upgrade or
// refusing to boot.
func (s *Server) VersionRaw(ctx context.Context) (string, error) {
	parsed, err := s.cli.PHP(ctx, versionScript)
	if err != nil {
		return "", err
	}
	v, ok := parsed.(string)
	if !ok {
		return "", fmt.Errorf("version.php yielded %T, expected a version string", parsed)
	}
	return v, nil
}

// Maintenance switches maintenance mode on or off.
func (s *Server) Maintenance(ctx context.Context, on bool) error {
	flag := "off"
	if on {
		flag = "on"
	}
	_, err := s.cli.Occ(ctx, occ.Command{Name: "maintenance:mode", Flags: []string{flag}})
	return err
}
