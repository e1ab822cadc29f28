package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// NodeFunc executes one assertion (probe, and apply if needed) and returns
// its outcome. The walker only calls it when the node is eligible.
type NodeFunc func(ctx context.Context, a resource.Assertion) (resource.Outcome, error)

// NodeResult records what happened to one assertion during a walk.
type NodeResult struct {
	ID       string        `json:"id"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`

	outcome resource.Outcome
	err     error
}

// Report is the full result of one graph walk, in execution order.
type Report struct {
	Results []NodeResult `json:"results"`
}

// Failed reports whether any required assertion failed or was skipped.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.outcome == resource.OutcomeFailed || res.outcome == resource.OutcomeSkipped {
			return true
		}
	}
	return false
}

// Changed reports whether any assertion mutated the system.
func (r Report) Changed() bool {
	for _, res := range r.Results {
		if res.outcome == resource.OutcomeChanged {
			return true
		}
	}
	return false
}

// Outcome returns the recorded outcome for an assertion ID.
func (r Report) Outcome(id string) (resource.Outcome, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res.outcome, true
		}
	}
	return 0, false
}

// Err returns the first failure in execution order, or nil.
func (r Report) Err() error {
	for _, res := range r.Results {
		if res.err != nil {
			return fmt.Errorf("%s: %w", res.ID, res.err)
		}
	}
	return nil
}

// Walk executes the graph sequentially in topological order. Mutating steps
// never run in parallel: later assertions read state written by earlier ones.
//
// Eligibility per node:
//   - every requires-predecessor must have converged (no change or changed);
//     a failed or skipped predecessor marks this node skipped,
//   - if onchange-predecessors exist, at least one must have changed,
//     otherwise the node is recorded as no-change without running,
//   - if onfailure-predecessors exist, at least one must have failed,
//     otherwise the node is recorded as no-change without running.
//
// Failures abort only the affected subtree; independent branches proceed.
func (g *Graph) Walk(ctx context.Context, run NodeFunc) Report {
	report := Report{Results: make([]NodeResult, 0, len(g.order))}
	outcomes := make(map[string]resource.Outcome, len(g.order))

	record := func(id string, outcome resource.Outcome, err error, d time.Duration) {
		outcomes[id] = outcome
		res := NodeResult{ID: id, Outcome: outcome.String(), Duration: d, outcome: outcome, err: err}
		if err != nil {
			res.Error = err.Error()
		}
		report.Results = append(report.Results, res)
	}

	for _, id := range g.order {
		if err := ctx.Err(); err != nil {
			record(id, resource.OutcomeSkipped, err, 0)
			continue
		}

		eligible, skipped, reason := g.eligibility(id, outcomes)
		if skipped {
			record(id, resource.OutcomeSkipped, fmt.Errorf("prerequisite %s", reason), 0)
			continue
		}
		if !eligible {
			// Trigger condition not met; nothing to do for this node.
			record(id, resource.OutcomeNoChange, nil, 0)
			continue
		}

		start := time.Now()
		outcome, err := run(ctx, g.nodes[id])
		record(id, outcome, err, time.Since(start))
	}

	return report
}

// eligibility evaluates a node's incoming edges against recorded outcomes.
func (g *Graph) eligibility(id string, outcomes map[string]resource.Outcome) (eligible, skipped bool, reason string) {
	edges := g.preds[id]

	var hasOnChange, hasOnFail, changeMet, failMet bool

	for _, e := range edges {
		out, ok := outcomes[e.From]
		if !ok {
			// Predecessor never ran (cancelled walk); fail safe.
			return false, true, fmt.Sprintf("%s did not run", e.From)
		}
		switch e.Kind {
		case EdgeRequires:
			if out == resource.OutcomeFailed || out == resource.OutcomeSkipped {
				return false, true, fmt.Sprintf("%s %s", e.From, out)
			}
		case EdgeOnChange:
			hasOnChange = true
			if out == resource.OutcomeFailed || out == resource.OutcomeSkipped {
				return false, true, fmt.Sprintf("%s %s", e.From, out)
			}
			if out == resource.OutcomeChanged {
				changeMet = true
			}
		case EdgeOnFailure:
			hasOnFail = true
			if out == resource.OutcomeFailed {
				failMet = true
			}
		}
	}

	if hasOnChange && !changeMet {
		return false, false, ""
	}
	if hasOnFail && !failMet {
		return false, false, ""
	}
	return true, false, ""
}

// RenderText formats a report as an aligned, human-readable table.
func (r Report) RenderText() string {
	var b strings.Builder
	width := 0
	for _, res := range r.Results {
		if len(res.ID) > width {
			width = len(res.ID)
		}
	}
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%-*s  %s", width, res.ID, res.Outcome)
		if res.Error != "" {
			fmt.Fprintf(&b, "  (%s)", res.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderJSON formats a report as indented JSON.
func (r Report) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
