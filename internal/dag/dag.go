package dag

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new pending node with the given ID to the graph.
func (g *Graph) AddNode(id string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}

	g.nodes[id] = &node{id: id, seq: len(g.order)}
	g.order = append(g.order, id)
	return nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
// Adding an existing edge again is a no-op.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	if toNode.hasDep(fromID) {
		return nil
	}
	toNode.deps = append(toNode.deps, fromNode)
	fromNode.dependents = append(fromNode.dependents, toNode)

	return nil
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}

// Nodes returns every node ID in insertion order.
func (g *Graph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.order)
}

// Dependencies returns the IDs the given node depends on, in edge order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return ids(n.deps), nil
}

// Dependents returns the IDs that depend on the given node, in edge order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return ids(n.dependents), nil
}

func ids(nodes []*node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.id
	}
	return out
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// carrying the node sequence of the first cycle found.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var stack []string

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			// The node is on the recursion stack: the cycle is the stack suffix
			// starting at its first occurrence.
			start := slices.Index(stack, n.id)
			path := append(slices.Clone(stack[start:]), n.id)
			return &CycleError{Path: path}
		}

		temporary[n.id] = true
		stack = append(stack, n.id)

		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}

	return nil
}

// Layers groups nodes into topological layers: layer 0 holds nodes without
// dependencies, layer k holds nodes whose deepest dependency is in layer k-1.
// It returns an error if the graph has a cycle.
func (g *Graph) Layers() ([][]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	depth := make(map[string]int, len(g.order))
	var depthOf func(n *node) int
	depthOf = func(n *node) int {
		if d, ok := depth[n.id]; ok {
			return d
		}
		d := 0
		for _, dep := range n.deps {
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[n.id] = d
		return d
	}

	var layers [][]string
	for _, id := range g.order {
		d := depthOf(g.nodes[id])
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], id)
	}
	return layers, nil
}

// Status returns the current status of a node.
func (g *Graph) Status(id string) (model.Status, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return model.StatusPending, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n.status, nil
}

// MarkStatus moves a node to status. Transitions only go forward
// (Pending -> Running -> terminal, or Pending -> terminal) and a terminal
// status is set exactly once.
func (g *Graph) MarkStatus(id string, status model.Status) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.status.IsTerminal() || status <= n.status {
		return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, id, n.status, status)
	}
	n.status = status
	return nil
}

// ReadyNodes returns pending nodes whose dependencies are all terminal, in
// insertion order.
func (g *Graph) ReadyNodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var ready []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.status != model.StatusPending {
			continue
		}
		if allTerminal(n.deps) {
			ready = append(ready, id)
		}
	}
	return ready
}

func allTerminal(nodes []*node) bool {
	for _, n := range nodes {
		if !n.status.IsTerminal() {
			return false
		}
	}
	return true
}

// AllTerminal reports whether every node has reached a terminal status.
func (g *Graph) AllTerminal() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	for _, n := range g.nodes {
		if !n.status.IsTerminal() {
			return false
		}
	}
	return true
}

// Unfinished returns the non-terminal nodes in insertion order.
func (g *Graph) Unfinished() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var out []string
	for _, id := range g.order {
		if !g.nodes[id].status.IsTerminal() {
			out = append(out, id)
		}
	}
	return out
}
