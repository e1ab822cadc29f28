package resource

import "context"

// Status is the result of probing an assertion's current state.
type Status int

const (
	// StatusUnsatisfied means the target is not in the desired state and
	// the assertion's mutation must run.
	StatusUnsatisfied Status = iota
	// StatusSatisfied means the target already matches the desired state.
	StatusSatisfied
	// StatusIndeterminate means the probe itself could not execute
	// (e.g. the target filesystem was unreachable). The planner treats
	// this as unsatisfied but logs it distinctly.
	StatusIndeterminate
)

func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusUnsatisfied:
		return "unsatisfied"
	case StatusIndeterminate:
		return "indeterminate"
	}
	return "unknown"
}

// Outcome is the per-assertion result of a convergence run.
type Outcome int

const (
	// OutcomeNoChange means the probe reported satisfied; nothing ran.
	OutcomeNoChange Outcome = iota
	// OutcomeChanged means the mutation ran and the post-condition holds.
	OutcomeChanged
	// OutcomeFailed means the mutation or its post-condition check failed.
	OutcomeFailed
	// OutcomeSkipped means a prerequisite failed, so this assertion
	// never ran. Counts as failure for the overall run status.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no change"
	case OutcomeChanged:
		return "changed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// Assertion is a named desired-state declaration. Probe must never mutate
// anything; all side effects live in Apply. Assertions are constructed once
// per convergence run and never mutated afterwards.
type Assertion interface {
	// ID returns the unique identifier of this assertion within a plan.
	ID() string

	// Requires returns the IDs of assertions that must converge before
	// this one may run.
	Requires() []string

	// Probe reports whether the target is already in the desired state.
	// A non-nil error accompanies StatusIndeterminate and describes why
	// the probe could not execute.
	Probe(ctx context.Context) (Status, error)

	// Apply drives the target toward the desired state. It is only
	// invoked when Probe reported unsatisfied (or indeterminate).
	Apply(ctx context.Context) error
}

// Verifier is implemented by assertions whose post-condition must be
// re-checked after Apply instead of trusting the mutation's exit status.
// The install checkpoint is the canonical example.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Func adapts plain functions into an Assertion. Used for the declarative
// passthrough hooks (package/service/cron management) that external
// collaborators attach to the graph.
type Func struct {
	Name     string
	Deps     []string
	ProbeFn  func(ctx context.Context) (Status, error)
	ApplyFn  func(ctx context.Context) error
	VerifyFn func(ctx context.Context) error
}

func (f *Func) ID() string         { return f.Name }
func (f *Func) Requires() []string { return f.Deps }

func (f *Func) Probe(ctx context.Context) (Status, error) {
	if f.ProbeFn == nil {
		return StatusUnsatisfied, nil
	}
	return f.ProbeFn(ctx)
}

func (f *Func) Apply(ctx context.Context) error {
	if f.ApplyFn == nil {
		return nil
	}
	return f.ApplyFn(ctx)
}

func (f *Func) Verify(ctx context.Context) error {
	if f.VerifyFn == nil {
		return nil
	}
	return f.VerifyFn(ctx)
}
