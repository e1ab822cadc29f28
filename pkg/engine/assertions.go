package engine

import (
	"context"
	"fmt"

	"github.com/ncsteward/ncsteward/pkg/archive"
	"github.com/ncsteward/ncsteward/pkg/events"
	"github.com/ncsteward/ncsteward/pkg/fetch"
	"github.com/ncsteward/ncsteward/pkg/manifest"
	"github.com/ncsteward/ncsteward/pkg/plan"
	"github.com/ncsteward/ncsteward/pkg/release"
	"github.com/ncsteward/ncsteward/pkg/resource"
)

// Assertion IDs of the core plan.
const (
	AssertRelease    = "server.release"
	AssertInstall    = "server.install"
	AssertCheckpoint = "server.checkpoint"
	AssertUpgrade    = "server.upgrade"
	AssertConfig     = "config.sync"
	AssertJobs       = "jobs.background"
)

func (e *Engine) buildGraph() (*plan.Graph, error) {
	b := plan.NewBuilder()
	b.Add(e.releaseAssertion())
	b.Add(e.installAssertion())
	b.Add(e.checkpointAssertion())
	b.Add(e.upgradeAssertion())
	if !e.man.Config.Empty() {
		b.Add(e.configAssertion())
	}
	b.Add(e.jobsAssertion())
	for _, h := range e.hooks {
		b.Add(h)
	}
	return b.Build()
}

func (e *Engine) trustAnchor() fetch.TrustAnchor {
	t := e.man.Server.Trust
	anchor := fetch.TrustAnchor{
		Fingerprints:    t.Fingerprints,
		Keyserver:       t.Keyserver,
		FallbackCertURL: t.FallbackCertURL,
	}
	if anchor.Keyserver == "" {
		anchor.Keyserver = e.cfg.Fetch.Keyserver
	}
	if anchor.FallbackCertURL == "" {
		anchor.FallbackCertURL = e.cfg.Fetch.FallbackCertURL
	}
	return anchor
}

// releaseAssertion acquires, verifies and extracts the release archive into
// the webroot. The probe checks for the control script; once it exists the
// release is in place and extraction never runs again for this target.
func (e *Engine) releaseAssertion() resource.Assertion {
	return &resource.Func{
		Name: AssertRelease,
		ProbeFn: func(ctx context.Context) (resource.Status, error) {
			present, err := e.srv.Client().ScriptPresent()
			if err != nil {
				return resource.StatusIndeterminate, err
			}
			if present {
				return resource.StatusSatisfied, nil
			}
			return resource.StatusUnsatisfied, nil
		},
		ApplyFn: func(ctx context.Context) error {
			version, err := e.resolver.Resolve(ctx, e.descriptor)
			if err != nil {
				return err
			}
			if within, err := release.WithinMax(version, e.man.Server.MaxVersion); err != nil {
				return err
			} else if !within {
				return fmt.Errorf("resolved version %s exceeds max_version %s", version, e.man.Server.MaxVersion)
			}

			art := e.source.Artifact(version)
			e.bus.Publish(events.NewEvent(events.EventDownloadStart, AssertRelease, art.ArchiveURL))
			verified, err := e.pipeline.Acquire(ctx, art, e.trustAnchor())
			if err != nil {
				e.bus.Publish(events.NewEvent(events.EventVerifyResult, AssertRelease, err.Error()))
				return err
			}
			e.bus.Publish(events.NewEvent(events.EventVerifyResult, AssertRelease, "verified"))
			defer verified.Close()

			err = archive.Extract(ctx, verified.Path, e.cfg.Webroot, archive.Options{
				PreserveDirs: []string{"data", "config"},
			})
			if err != nil {
				return err
			}
			e.bus.Publish(events.NewEvent(events.EventDownloadDone, AssertRelease, version))
			return nil
		},
	}
}

// installAssertion drives the one-shot initialization in the variant the
// manifest declares. The manual variant prepares the autoconfiguration
// descriptor and then reports pending, which stops everything downstream
// until an operator finishes setup and a later run finds it done.
func (e *Engine) installAssertion() resource.Assertion {
	probe := func(ctx context.Context) (resource.Status, error) {
		installed, err := e.srv.IsInstalled(ctx)
		if err != nil {
			return resource.StatusIndeterminate, err
		}
		if installed {
			return resource.StatusSatisfied, nil
		}
		return resource.StatusUnsatisfied, nil
	}

	var apply func(ctx context.Context) error
	switch st := e.man.InstallStrategy().(type) {
	case manifest.ManualStrategy:
		apply = func(ctx context.Context) error {
			if err := e.srv.WriteAutoconfig(ctx, e.man.Server.Install); err != nil {
				return err
			}
			return fmt.Errorf("%w: finish setup via the web installer", resource.ErrManualStepPending)
		}
	case manifest.RawStrategy:
		apply = func(ctx context.Context) error {
			return e.srv.InstallRaw(ctx, st)
		}
	case manifest.ScriptedStrategy:
		apply = func(ctx context.Context) error {
			return e.srv.Install(ctx, st)
		}
	}

	return &resource.Func{
		Name:    AssertInstall,
		Deps:    []string{AssertRelease},
		ProbeFn: probe,
		ApplyFn: apply,
	}
}

// checkpointAssertion holds the compatibility gate. Nothing can "apply" a
// passing check; a failing check fails the assertion and the walker skips
// the whole downstream subtree.
func (e *Engine) checkpointAssertion() resource.Assertion {
	return &resource.Func{
		Name: AssertCheckpoint,
		Deps: []string{AssertInstall},
		ProbeFn: func(ctx context.Context) (resource.Status, error) {
			ok, detail, err := e.srv.Check(ctx)
			if err != nil {
				return resource.StatusIndeterminate, err
			}
			e.bus.Publish(events.NewEvent(events.EventCheckpointResult, AssertCheckpoint, ok))
			if ok {
				return resource.StatusSatisfied, nil
			}
			e.log.Warn("compatibility check failing", "detail", detail)
			return resource.StatusUnsatisfied, nil
		},
		ApplyFn: func(ctx context.Context) error {
			ok, detail, err := e.srv.Check(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", resource.ErrCheckpointUnsatisfied, detail)
			}
			return nil
		},
	}
}

// upgradeAssertion runs the bundled updater while the update channel offers
// a version within the declared bound.
func (e *Engine) upgradeAssertion() resource.Assertion {
	return &resource.Func{
		Name: AssertUpgrade,
		Deps: []string{AssertCheckpoint},
		ProbeFn: func(ctx context.Context) (resource.Status, error) {
			uptodate, err := e.srv.IsUptodate(ctx, e.man.Server.MaxVersion)
			if err != nil {
				return resource.StatusIndeterminate, err
			}
			if uptodate {
				return resource.StatusSatisfied, nil
			}
			return resource.StatusUnsatisfied, nil
		},
		ApplyFn: func(ctx context.Context) error {
			e.bus.Publish(events.NewEvent(events.EventUpgradeStart, AssertUpgrade, nil))
			if err := e.srv.Upgrade(ctx); err != nil {
				return err
			}
			version, err := e.srv.VersionRaw(ctx)
			if err != nil {
				return err
			}
			e.bus.Publish(events.NewEvent(events.EventUpgradeEnd, AssertUpgrade, version))
			return nil
		},
	}
}

// configAssertion converges the declared configuration entries once the
// checkpoint holds and any upgrade has settled.
func (e *Engine) configAssertion() resource.Assertion {
	return &resource.Func{
		Name: AssertConfig,
		Deps: []string{AssertCheckpoint, AssertUpgrade},
		ProbeFn: func(ctx context.Context) (resource.Status, error) {
			current, err := e.sync.Current(ctx)
			if err != nil {
				return resource.StatusIndeterminate, err
			}
			if e.sync.Plan(e.man.Config, current).Empty() {
				return resource.StatusSatisfied, nil
			}
			return resource.StatusUnsatisfied, nil
		},
		ApplyFn: func(ctx context.Context) error {
			changed, err := e.sync.Sync(ctx, e.man.Config, e.srv.Check)
			if err != nil {
				e.bus.Publish(events.NewEvent(events.EventConfigReverted, AssertConfig, err.Error()))
				return err
			}
			if changed {
				e.bus.Publish(events.NewEvent(events.EventConfigImported, AssertConfig, nil))
			}
			return nil
		},
	}
}

// jobsAssertion pins the background job execution mode.
func (e *Engine) jobsAssertion() resource.Assertion {
	return &resource.Func{
		Name: AssertJobs,
		Deps: []string{AssertCheckpoint},
		ProbeFn: func(ctx context.Context) (resource.Status, error) {
			mode, err := e.srv.BackgroundJobsMode(ctx)
			if err != nil {
				return resource.StatusIndeterminate, err
			}
			if mode == e.man.BackgroundJobs {
				return resource.StatusSatisfied, nil
			}
			return resource.StatusUnsatisfied, nil
		},
		ApplyFn: func(ctx context.Context) error {
			return e.srv.SetBackgroundJobs(ctx, e.man.BackgroundJobs)
		},
	}
}
