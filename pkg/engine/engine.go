// Package engine assembles the convergence plan from a manifest and walks
// it: resolve and acquire the release, extract it, initialize, hold the
// compatibility checkpoint, upgrade within bounds and converge the
// configuration.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ncsteward/ncsteward/internal/config"
	"github.com/ncsteward/ncsteward/internal/journal"
	"github.com/ncsteward/ncsteward/pkg/confsync"
	"github.com/ncsteward/ncsteward/pkg/events"
	"github.com/ncsteward/ncsteward/pkg/fetch"
	"github.com/ncsteward/ncsteward/pkg/manifest"
	"github.com/ncsteward/ncsteward/pkg/occ"
	"github.com/ncsteward/ncsteward/pkg/plan"
	"github.com/ncsteward/ncsteward/pkg/release"
	"github.com/ncsteward/ncsteward/pkg/resource"
	"github.com/ncsteward/ncsteward/pkg/server"
)

// Engine runs convergence for one managed installation.
type Engine struct {
	cfg        config.Config
	man        manifest.Manifest
	descriptor release.Descriptor
	source     release.Source
	resolver   release.Resolver

	srv      *server.Server
	sync     *confsync.Syncer
	pipeline *fetch.Pipeline

	bus   events.EventBus
	jrnl  *journal.Journal
	log   *slog.Logger
	hooks []resource.Assertion
}

// Options carries the engine's replaceable collaborators. Zero values get
// production defaults; tests substitute fakes.
type Options struct {
	Runner   occ.Runner
	Resolver release.Resolver
	Bus      events.EventBus
	Journal  *journal.Journal
	Log      *slog.Logger
	// Hooks are extra assertions external collaborators attach to the
	// plan (package, service or cron management around the core graph).
	Hooks []resource.Assertion
}

// New builds an engine for one manifest. Declaration errors (bad versions,
// pinned version beyond the upgrade bound, bad source template) surface
// here, before anything runs.
func New(cfg config.Config, man manifest.Manifest, opts Options) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	var descriptor release.Descriptor
	var err error
	if man.Server.Version != "" {
		descriptor, err = release.Pinned(man.Server.Version)
		if err == nil && man.Server.MaxVersion != "" {
			within, werr := release.WithinMax(man.Server.Version, man.Server.MaxVersion)
			if werr != nil {
				err = werr
			} else if !within {
				err = &resource.ConfigError{
					Field:  "server.version",
					Reason: fmt.Sprintf("pinned version %s exceeds max_version %s", man.Server.Version, man.Server.MaxVersion),
				}
			}
		}
	} else {
		descriptor, err = release.Track(man.Server.Track)
	}
	if err != nil {
		return nil, err
	}

	source, err := release.NewSource(man.Server.Source.ArchiveURL)
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = occ.ExecRunner{}
	}
	runner = timeoutRunner{inner: runner, d: cfg.Occ.Timeout}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = release.NewGitHubResolver("nextcloud", "server", os.Getenv("GITHUB_TOKEN"))
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewMemoryBus()
	}

	cli := occ.New(runner, cfg.Webroot, cfg.Webuser, cfg.Occ.EnsureAPC, log)

	return &Engine{
		cfg:        cfg,
		man:        man,
		descriptor: descriptor,
		source:     source,
		resolver:   resolver,
		srv:        server.New(cli, log),
		sync:       confsync.NewSyncer(cli, log),
		pipeline:   fetch.New(cfg.Fetch.ScratchDir, cfg.Fetch.Timeout, log),
		bus:        bus,
		jrnl:       opts.Journal,
		log:        log,
		hooks:      opts.Hooks,
	}, nil
}

// Server exposes the lifecycle operations for ad hoc commands (status,
// check) outside a full run.
func (e *Engine) Server() *server.Server { return e.srv }

// Bus exposes the event bus so observers can subscribe before Run.
func (e *Engine) Bus() events.EventBus { return e.bus }

// Run converges the installation and returns the per-assertion report.
// The returned error covers plan construction only; execution failures
// live in the report.
func (e *Engine) Run(ctx context.Context) (plan.Report, error) {
	g, err := e.buildGraph()
	if err != nil {
		return plan.Report{}, err
	}

	token := journal.NewToken()
	started := time.Now()
	e.log.Info("convergence run starting", "run", token, "assertions", g.Len())
	e.bus.Publish(events.NewEvent(events.EventRunStart, "", token))

	report := g.Walk(ctx, e.execute)

	e.bus.Publish(events.NewEvent(events.EventRunEnd, "", !report.Failed()))
	e.log.Info("convergence run finished", "run", token, "failed", report.Failed(), "changed", report.Changed())

	if e.jrnl != nil {
		rec := journal.RunRecord{
			Token:      token,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Succeeded:  !report.Failed(),
			Results:    journalResults(report),
		}
		if err := e.jrnl.Record(rec); err != nil {
			e.log.Warn("failed to journal run", "run", token, "error", err)
		}
	}
	return report, nil
}

// Plan walks the graph probing only, reporting what a run would change.
// Probes of assertions whose prerequisites have not been applied yet are
// often indeterminate; those count as "would change".
func (e *Engine) Plan(ctx context.Context) (plan.Report, error) {
	g, err := e.buildGraph()
	if err != nil {
		return plan.Report{}, err
	}
	return g.Walk(ctx, func(ctx context.Context, a resource.Assertion) (resource.Outcome, error) {
		status, perr := a.Probe(ctx)
		if status == resource.StatusSatisfied {
			return resource.OutcomeNoChange, nil
		}
		if status == resource.StatusIndeterminate {
			e.log.Debug("probe indeterminate during plan", "assertion", a.ID(), "error", perr)
		}
		return resource.OutcomeChanged, nil
	}), nil
}

// execute runs one eligible assertion: probe, then apply if unsatisfied,
// then re-verify where the assertion demands it.
func (e *Engine) execute(ctx context.Context, a resource.Assertion) (resource.Outcome, error) {
	status, perr := a.Probe(ctx)
	e.bus.Publish(events.NewEvent(events.EventProbeResult, a.ID(), status.String()))

	switch status {
	case resource.StatusSatisfied:
		e.log.Debug("assertion already satisfied", "assertion", a.ID())
		return resource.OutcomeNoChange, nil
	case resource.StatusIndeterminate:
		e.log.Warn("probe indeterminate, treating as unsatisfied", "assertion", a.ID(), "error", perr)
	default:
		e.log.Debug("assertion unsatisfied, applying", "assertion", a.ID())
	}

	if err := a.Apply(ctx); err != nil {
		e.bus.Publish(events.NewEvent(events.EventAssertionFailed, a.ID(), err.Error()))
		return resource.OutcomeFailed, err
	}
	if v, ok := a.(resource.Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			e.bus.Publish(events.NewEvent(events.EventAssertionFailed, a.ID(), err.Error()))
			return resource.OutcomeFailed, err
		}
	}
	e.bus.Publish(events.NewEvent(events.EventAssertionApplied, a.ID(), nil))
	return resource.OutcomeChanged, nil
}

func journalResults(report plan.Report) []journal.AssertionResult {
	out := make([]journal.AssertionResult, len(report.Results))
	for i, r := range report.Results {
		out[i] = journal.AssertionResult{ID: r.ID, Outcome: r.Outcome, Error: r.Error, Duration: r.Duration}
	}
	return out
}

// timeoutRunner bounds every control-script invocation with the configured
// occ timeout. The acquisition pipeline has its own HTTP timeout.
type timeoutRunner struct {
	inner occ.Runner
	d     time.Duration
}

func (r timeoutRunner) Run(ctx context.Context, inv occ.Invocation) (occ.Result, error) {
	if r.d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.d)
		defer cancel()
	}
	return r.inner.Run(ctx, inv)
}
