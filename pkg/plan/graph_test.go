package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

func node(id string, deps ...string) *resource.Func {
	return &resource.Func{Name: id, Deps: deps}
}

func TestBuildTopologicalOrder(t *testing.T) {
	g, err := NewBuilder().
		Add(node("release")).
		Add(node("install", "release")).
		Add(node("checkpoint", "install")).
		Add(node("config", "checkpoint")).
		Add(node("jobs", "checkpoint")).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"release", "install", "checkpoint", "config", "jobs"}, g.Order())
	assert.Equal(t, 5, g.Len())
}

func TestBuildDeterministicTieBreak(t *testing.T) {
	// Independent nodes must come out in declaration order every time.
	g, err := NewBuilder().
		Add(node("c")).
		Add(node("a")).
		Add(node("b")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, g.Order())
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	_, err := NewBuilder().Add(node("x")).Add(node("x")).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuildRejectsEmptyID(t *testing.T) {
	_, err := NewBuilder().Add(node("")).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ID")
}

func TestBuildRejectsUnknownReference(t *testing.T) {
	_, err := NewBuilder().Add(node("a", "ghost")).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion")
}

func TestBuildRejectsSelfLoop(t *testing.T) {
	_, err := NewBuilder().
		Add(node("a")).
		Connect("a", "a", EdgeRequires).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-loop")
}

func TestBuildRejectsCycle(t *testing.T) {
	_, err := NewBuilder().
		Add(node("a", "b")).
		Add(node("b", "a")).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildSkipsDuplicateEdges(t *testing.T) {
	g, err := NewBuilder().
		Add(node("a")).
		Add(node("b", "a")).
		Connect("a", "b", EdgeRequires).
		Build()
	require.NoError(t, err)
	assert.Len(t, g.Predecessors("b"), 1)
}

func TestWalkRunsEverythingInOrder(t *testing.T) {
	g, err := NewBuilder().
		Add(node("a")).
		Add(node("b", "a")).
		Build()
	require.NoError(t, err)

	var ran []string
	report := g.Walk(context.Background(), func(_ context.Context, a resource.Assertion) (resource.Outcome, error) {
		ran = append(ran, a.ID())
		return resource.OutcomeChanged, nil
	})

	assert.Equal(t, []string{"a", "b"}, ran)
	assert.False(t, report.Failed())
	assert.True(t, report.Changed())
}
