package dag

import (
	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	nodesTable = "nodes"
	edgesTable = "edges"
	idIndex    = "id"
	fromIndex  = "from" // outgoing edges of a node
	toIndex    = "to"   // incoming edges of a node
)

type node struct {
	Id string
}

// Edge points from a dependency to the job depending on it.
type Edge struct {
	From string
	To   string
}

// Graph is the dependency graph over job ids, stored in https://github.com/hashicorp/go-memdb so that a rejected
// insertion can be rolled back by aborting its transaction.
type Graph struct {
	db *memdb.MemDB
}

func NewGraph() (*Graph, error) {
	db, err := memdb.NewMemDB(graphSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Graph{db: db}, nil
}

// AddJob adds the node id and an edge dep -> id for every dep. If id is already known, the node gains the new edges.
// Either everything is added or, if any dependency is missing, equal to id or closes a cycle, nothing is.
func (g *Graph) AddJob(id string, deps []string) error {
	txn := g.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(nodesTable, idIndex, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing == nil {
		if err := txn.Insert(nodesTable, &node{Id: id}); err != nil {
			return errors.WithStack(err)
		}
	}
	added := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep == id {
			return errors.WithStack(&DependencyError{JobId: id, Dependency: dep, Reason: ReasonSelf})
		}
		obj, err := txn.First(nodesTable, idIndex, dep)
		if err != nil {
			return errors.WithStack(err)
		}
		if obj == nil {
			return errors.WithStack(&DependencyError{JobId: id, Dependency: dep, Reason: ReasonMissing})
		}
		obj, err = txn.First(edgesTable, idIndex, dep, id)
		if err != nil {
			return errors.WithStack(err)
		}
		if obj != nil {
			continue
		}
		if err := txn.Insert(edgesTable, &Edge{From: dep, To: id}); err != nil {
			return errors.WithStack(err)
		}
		added = append(added, dep)
	}

	// A new edge dep -> id closes a cycle iff dep is reachable from id. Only the part of the graph downstream of id
	// needs to be searched.
	if len(added) > 0 && existing != nil {
		targets := make(map[string]bool, len(added))
		for _, dep := range added {
			targets[dep] = true
		}
		hit, err := findReachable(txn, id, targets)
		if err != nil {
			return err
		}
		if hit != "" {
			return errors.WithStack(&DependencyError{JobId: id, Dependency: hit, Reason: ReasonCycle})
		}
	}
	txn.Commit()
	return nil
}

// findReachable returns the first node in targets reachable from start along outgoing edges, or "" if there is none.
func findReachable(txn *memdb.Txn, start string, targets map[string]bool) (string, error) {
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		next, err := successors(txn, current)
		if err != nil {
			return "", err
		}
		for _, s := range next {
			if targets[s] {
				return s, nil
			}
			if !visited[s] {
				visited[s] = true
				stack = append(stack, s)
			}
		}
	}
	return "", nil
}

// Verify checks that every edge joins two known nodes and that the graph is acyclic.
func (g *Graph) Verify() error {
	txn := g.db.Txn(false)
	nodes, err := allNodes(txn)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}
	edges, err := allEdges(txn)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, e := range edges {
		if !known[e.From] {
			result = multierror.Append(result, &DependencyError{JobId: e.To, Dependency: e.From, Reason: ReasonMissing})
		}
		if !known[e.To] {
			result = multierror.Append(result, &DependencyError{JobId: e.To, Dependency: e.From, Reason: ReasonMissing})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(err)
	}

	// Three-colour DFS: an edge into a grey node is a back edge.
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(nodes))
	var visit func(id string) error
	visit = func(id string) error {
		colour[id] = grey
		next, err := successors(txn, id)
		if err != nil {
			return err
		}
		for _, s := range next {
			switch colour[s] {
			case grey:
				return errors.WithStack(&DependencyError{JobId: s, Dependency: id, Reason: ReasonCycle})
			case white:
				if err := visit(s); err != nil {
					return err
				}
			}
		}
		colour[id] = black
		return nil
	}
	for _, id := range nodes {
		if colour[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// CanStart returns true if id is known and completed returns true for all of its dependencies.
func (g *Graph) CanStart(id string, completed func(string) bool) bool {
	txn := g.db.Txn(false)
	obj, err := txn.First(nodesTable, idIndex, id)
	if err != nil || obj == nil {
		return false
	}
	deps, err := predecessors(txn, id)
	if err != nil {
		return false
	}
	for _, p := range deps {
		if !completed(p) {
			return false
		}
	}
	return true
}

// Contains returns true if id is a node of the graph.
func (g *Graph) Contains(id string) bool {
	obj, err := g.db.Txn(false).First(nodesTable, idIndex, id)
	return err == nil && obj != nil
}

// Successors returns the ids of the jobs directly depending on id, sorted.
func (g *Graph) Successors(id string) []string {
	rv, err := successors(g.db.Txn(false), id)
	if err != nil {
		return nil
	}
	return rv
}

// Predecessors returns the direct dependencies of id, sorted.
func (g *Graph) Predecessors(id string) []string {
	rv, err := predecessors(g.db.Txn(false), id)
	if err != nil {
		return nil
	}
	return rv
}

// Nodes returns all node ids, sorted.
func (g *Graph) Nodes() []string {
	rv, err := allNodes(g.db.Txn(false))
	if err != nil {
		return nil
	}
	return rv
}

// Edges returns all edges, ordered by From and then To.
func (g *Graph) Edges() []Edge {
	rv, err := allEdges(g.db.Txn(false))
	if err != nil {
		return nil
	}
	return rv
}

func successors(txn *memdb.Txn, id string) ([]string, error) {
	edges, err := collectEdges(txn, fromIndex, id)
	if err != nil {
		return nil, err
	}
	rv := make([]string, len(edges))
	for i, e := range edges {
		rv[i] = e.To
	}
	slices.Sort(rv)
	return rv, nil
}

func predecessors(txn *memdb.Txn, id string) ([]string, error) {
	edges, err := collectEdges(txn, toIndex, id)
	if err != nil {
		return nil, err
	}
	rv := make([]string, len(edges))
	for i, e := range edges {
		rv[i] = e.From
	}
	slices.Sort(rv)
	return rv, nil
}

func allNodes(txn *memdb.Txn) ([]string, error) {
	it, err := txn.Get(nodesTable, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]string, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rv = append(rv, obj.(*node).Id)
	}
	return rv, nil
}

func allEdges(txn *memdb.Txn) ([]Edge, error) {
	edges, err := collectEdges(txn, idIndex)
	if err != nil {
		return nil, err
	}
	rv := make([]Edge, len(edges))
	for i, e := range edges {
		rv[i] = *e
	}
	return rv, nil
}

func collectEdges(txn *memdb.Txn, index string, args ...interface{}) ([]*Edge, error) {
	it, err := txn.Get(edgesTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]*Edge, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rv = append(rv, obj.(*Edge))
	}
	return rv, nil
}

// graphSchema creates the database schema: a nodes table keyed by id and an edges table keyed by (From, To) with
// secondary indexes on either endpoint.
func graphSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			nodesTable: {
				Name: nodesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Id"},
					},
				},
			},
			edgesTable: {
				Name: edgesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "From"},
								&memdb.StringFieldIndex{Field: "To"},
							},
						},
					},
					fromIndex: {
						Name:    fromIndex,
						Indexer: &memdb.StringFieldIndex{Field: "From"},
					},
					toIndex: {
						Name:    toIndex,
						Indexer: &memdb.StringFieldIndex{Field: "To"},
					},
				},
			},
		},
	}
}
