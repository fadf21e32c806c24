package dag

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addJob struct {
	id   string
	deps []string
}

func TestGraphSchema(t *testing.T) {
	assert.NoError(t, graphSchema().Validate())
}

func TestAddJob(t *testing.T) {
	tests := map[string]struct {
		setup         []addJob
		add           addJob
		expectedError DependencyReason
		expectedEdges []Edge
	}{
		"no dependencies": {
			add:           addJob{id: "a"},
			expectedEdges: []Edge{},
		},
		"known dependencies": {
			setup:         []addJob{{id: "a"}, {id: "b"}},
			add:           addJob{id: "c", deps: []string{"b", "a"}},
			expectedEdges: []Edge{{From: "a", To: "c"}, {From: "b", To: "c"}},
		},
		"duplicate dependency": {
			setup:         []addJob{{id: "a"}},
			add:           addJob{id: "b", deps: []string{"a", "a"}},
			expectedEdges: []Edge{{From: "a", To: "b"}},
		},
		"missing dependency": {
			setup:         []addJob{{id: "a"}},
			add:           addJob{id: "b", deps: []string{"a", "x"}},
			expectedError: ReasonMissing,
			expectedEdges: []Edge{},
		},
		"self dependency": {
			add:           addJob{id: "a", deps: []string{"a"}},
			expectedError: ReasonSelf,
			expectedEdges: []Edge{},
		},
		"cycle through existing node": {
			setup:         []addJob{{id: "a"}, {id: "b", deps: []string{"a"}}, {id: "c", deps: []string{"b"}}},
			add:           addJob{id: "a", deps: []string{"c"}},
			expectedError: ReasonCycle,
			expectedEdges: []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
		},
		"new edge on existing node": {
			setup:         []addJob{{id: "a"}, {id: "b"}},
			add:           addJob{id: "b", deps: []string{"a"}},
			expectedEdges: []Edge{{From: "a", To: "b"}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			g, err := NewGraph()
			require.NoError(t, err)
			for _, job := range tc.setup {
				require.NoError(t, g.AddJob(job.id, job.deps))
			}
			nodesBefore := g.Nodes()

			err = g.AddJob(tc.add.id, tc.add.deps)
			if tc.expectedError != "" {
				var e *DependencyError
				require.True(t, errors.As(err, &e), "expected a DependencyError but got %v", err)
				assert.Equal(t, tc.expectedError, e.Reason)
				assert.Equal(t, tc.add.id, e.JobId)
				assert.Equal(t, nodesBefore, g.Nodes())
			} else {
				require.NoError(t, err)
				assert.True(t, g.Contains(tc.add.id))
			}
			assert.Equal(t, tc.expectedEdges, g.Edges())
			assert.NoError(t, g.Verify())
		})
	}
}

func TestCanStart(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.AddJob("j1", nil))
	require.NoError(t, g.AddJob("j2", []string{"j1"}))

	completed := map[string]bool{}
	isCompleted := func(id string) bool { return completed[id] }

	assert.True(t, g.CanStart("j1", isCompleted))
	assert.False(t, g.CanStart("j2", isCompleted))
	completed["j1"] = true
	assert.True(t, g.CanStart("j2", isCompleted))

	err = g.AddJob("j3", []string{"does-not-exist"})
	var e *DependencyError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ReasonMissing, e.Reason)
	assert.Equal(t, "does-not-exist", e.Dependency)
	assert.False(t, g.Contains("j3"))
	assert.False(t, g.CanStart("j3", isCompleted))
	assert.Equal(t, []string{"j1", "j2"}, g.Nodes())
}

func TestSuccessorsAndPredecessors(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.AddJob("root", nil))
	require.NoError(t, g.AddJob("z", []string{"root"}))
	require.NoError(t, g.AddJob("y", []string{"root"}))
	require.NoError(t, g.AddJob("join", []string{"z", "y"}))

	assert.Equal(t, []string{"y", "z"}, g.Successors("root"))
	assert.Equal(t, []string{"join"}, g.Successors("y"))
	assert.Empty(t, g.Successors("join"))
	assert.Empty(t, g.Successors("unknown"))
	assert.Equal(t, []string{"y", "z"}, g.Predecessors("join"))
	assert.Empty(t, g.Predecessors("root"))
}

func TestVerify(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.AddJob("a", nil))
	require.NoError(t, g.AddJob("b", []string{"a"}))
	require.NoError(t, g.Verify())

	// Bypass AddJob to corrupt the graph.
	txn := g.db.Txn(true)
	require.NoError(t, txn.Insert(edgesTable, &Edge{From: "ghost", To: "b"}))
	require.NoError(t, txn.Insert(edgesTable, &Edge{From: "a", To: "phantom"}))
	txn.Commit()

	err = g.Verify()
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
	for _, e := range merr.Errors {
		var depErr *DependencyError
		assert.True(t, errors.As(e, &depErr))
		assert.Equal(t, ReasonMissing, depErr.Reason)
	}
}

func TestVerify_Cycle(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.AddJob("a", nil))
	require.NoError(t, g.AddJob("b", []string{"a"}))

	txn := g.db.Txn(true)
	require.NoError(t, txn.Insert(edgesTable, &Edge{From: "b", To: "a"}))
	txn.Commit()

	err = g.Verify()
	var e *DependencyError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ReasonCycle, e.Reason)
}

func TestGraph_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	// A chain n0 <- n1 <- ... <- nk, each node also depending on an arbitrary subset of its predecessors.
	genGraph := gen.IntRange(2, 12).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		return gen.SliceOfN(n, gen.SliceOf(gen.IntRange(0, n)))
	}, reflect.TypeOf([][]int{}))

	build := func(t *testing.T, extra [][]int) *Graph {
		g, err := NewGraph()
		require.NoError(t, err)
		for i := range extra {
			var deps []string
			if i > 0 {
				deps = append(deps, nodeId(i-1))
			}
			for _, d := range extra[i] {
				if d < i {
					deps = append(deps, nodeId(d))
				}
			}
			require.NoError(t, g.AddJob(nodeId(i), deps))
		}
		return g
	}

	properties.Property("graphs built through AddJob verify", prop.ForAll(
		func(extra [][]int) bool {
			return build(t, extra).Verify() == nil
		},
		genGraph,
	))

	properties.Property("cycle-forming insertions are rejected without side effects", prop.ForAll(
		func(extra [][]int, i, j int) bool {
			g := build(t, extra)
			from, to := i%len(extra), j%len(extra)
			if from == to {
				return true
			}
			if from > to {
				from, to = to, from
			}
			nodes, edges := g.Nodes(), g.Edges()

			// to is downstream of from along the chain, so from depending on to closes a cycle.
			err := g.AddJob(nodeId(from), []string{nodeId(to)})
			var e *DependencyError
			if !errors.As(err, &e) || e.Reason != ReasonCycle {
				return false
			}
			return assert.ObjectsAreEqual(nodes, g.Nodes()) && assert.ObjectsAreEqual(edges, g.Edges()) && g.Verify() == nil
		},
		genGraph, gen.IntRange(0, 100), gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func nodeId(i int) string {
	return fmt.Sprintf("job-%02d", i)
}
