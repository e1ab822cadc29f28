package confsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ncsteward/ncsteward/pkg/manifest"
	"github.com/ncsteward/ncsteward/pkg/occ"
)

// CheckFunc runs the compatibility check and reports whether it passed,
// together with the check's own output for diagnostics.
type CheckFunc func(ctx context.Context) (ok bool, detail string, err error)

// Syncer converges the live configuration store toward a declaration.
type Syncer struct {
	cli *occ.Client
	log *slog.Logger
}

// NewSyncer creates a Syncer over an occ client.
func NewSyncer(cli *occ.Client, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{cli: cli, log: log}
}

// Current reads the live configuration, including private values, so the
// diff sees what is actually set rather than the redacted view.
func (s *Syncer) Current(ctx context.Context) (Changes, error) {
	out, err := s.cli.Occ(ctx, occ.Command{
		Name:  "config:list",
		Flags: []string{"private"},
		JSON:  true,
		Quiet: true,
	})
	if err != nil {
		return Changes{}, err
	}
	raw, err := json.Marshal(out.Parsed)
	if err != nil {
		return Changes{}, fmt.Errorf("config:list: reencode output: %w", err)
	}
	var current Changes
	if err := json.Unmarshal(raw, &current); err != nil {
		return Changes{}, fmt.Errorf("config:list: decode output: %w", err)
	}
	return current, nil
}

// Plan diffs the declaration against the live configuration. The recursive
// diff decides which keys differ; the plan carries each differing key's full
// declared value, because the import writes whole top-level values and a
// partial nested map would clobber siblings.
func (s *Syncer) Plan(desired manifest.ConfigSync, current Changes) Changes {
	planned := Changes{
		System: planSection(desired.System, current.System),
		Apps:   make(map[string]map[string]any),
	}
	for app, vals := range desired.Apps {
		cur := current.Apps[app]
		if section := planSection(vals, cur); len(section) > 0 {
			planned.Apps[app] = section
		}
	}
	return planned
}

func planSection(desired, current map[string]any) map[string]any {
	changed := diffMap(desired, current)
	out := make(map[string]any, len(changed))
	for k, v := range changed {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = desired[k]
	}
	return out
}

// Sync converges the configuration and verifies the result. When the
// compatibility check passed before the import but fails afterwards, the
// import is reverted and the run fails, unless the declaration forces the
// change through.
func (s *Syncer) Sync(ctx context.Context, desired manifest.ConfigSync, check CheckFunc) (bool, error) {
	if desired.Empty() {
		return false, nil
	}

	current, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	planned := s.Plan(desired, current)
	if planned.Empty() {
		s.log.Debug("configuration already converged")
		return false, nil
	}
	s.log.Info("importing configuration", "keys", planned.Keys())

	preOK := desired.Force
	if !desired.Force {
		preOK, _, err = check(ctx)
		if err != nil {
			return false, err
		}
	}

	snapshot := snapshotFor(planned, current)

	if err := s.apply(ctx, planned); err != nil {
		return false, err
	}

	if desired.Force {
		return true, nil
	}

	postOK, detail, err := check(ctx)
	if err != nil {
		return true, err
	}
	if postOK {
		return true, nil
	}
	if !preOK {
		return true, fmt.Errorf("compatibility check still failing after configuration import: %s", detail)
	}

	s.log.Warn("configuration import broke the compatibility check, reverting", "detail", detail)
	if rerr := s.apply(ctx, snapshot); rerr != nil {
		return true, fmt.Errorf("revert after failed check: %w (check said: %s)", rerr, detail)
	}
	return true, fmt.Errorf("configuration import reverted: compatibility check regressed: %s", detail)
}

// apply imports the non-nil values in one shot and issues explicit deletes
// for the nil ones.
func (s *Syncer) apply(ctx context.Context, changes Changes) error {
	payload := Changes{System: make(map[string]any), Apps: make(map[string]map[string]any)}
	for k, v := range changes.System {
		if v == nil {
			if err := s.SystemDelete(ctx, k, DefaultSeparator); err != nil {
				return err
			}
			continue
		}
		payload.System[k] = v
	}
	for app, vals := range changes.Apps {
		for k, v := range vals {
			if v == nil {
				if err := s.AppDelete(ctx, app, k); err != nil {
					return err
				}
				continue
			}
			if payload.Apps[app] == nil {
				payload.Apps[app] = make(map[string]any)
			}
			payload.Apps[app][k] = v
		}
	}
	if len(payload.System) == 0 && len(payload.Apps) == 0 {
		return nil
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode configuration import: %w", err)
	}
	_, err = s.cli.Occ(ctx, occ.Command{
		Name:  "config:import",
		Stdin: string(doc),
		Quiet: true,
	})
	return err
}

// snapshotFor records the prior value of every key the plan will touch. A
// key that did not exist before maps to nil so the revert deletes it again.
func snapshotFor(planned, current Changes) Changes {
	snap := Changes{System: make(map[string]any), Apps: make(map[string]map[string]any)}
	for k := range planned.System {
		if v, ok := current.System[k]; ok {
			snap.System[k] = v
		} else {
			snap.System[k] = nil
		}
	}
	for app, vals := range planned.Apps {
		snap.Apps[app] = make(map[string]any)
		for k := range vals {
			if v, ok := current.Apps[app][k]; ok {
				snap.Apps[app][k] = v
			} else {
				snap.Apps[app][k] = nil
			}
		}
	}
	return snap
}
