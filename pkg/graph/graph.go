package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the dependency graph over the active nodes of a provisioning run.
// Nodes whose existence condition evaluated false are pruned before the graph
// is built; the graph never contains dead nodes.
type Graph struct {
	// Nodes indexed by "type.name" identity.
	Nodes map[string]*Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.ID]; exists {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	g.Nodes[node.ID] = node
	return nil
}

// Node returns a node by ID, or nil.
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// AddEdge adds a dependency edge: dependent waits on dependency.
func (g *Graph) AddEdge(dependentID, dependencyID string) error {
	dependent := g.Node(dependentID)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentID)
	}

	dependency := g.Node(dependencyID)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyID)
	}

	dependent.AddDependency(dependencyID)
	dependency.AddDependent(dependentID)

	return nil
}

// SortedIDs returns all node IDs in lexical order, for deterministic output.
func (g *Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CycleError reports a dependency cycle discovered during graph construction.
type CycleError struct {
	// Nodes lists the participants in declaration order around the cycle.
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Nodes, " -> "))
}

// FindCycle runs a depth-first traversal and returns a CycleError naming the
// participating nodes, or nil when the graph is acyclic. It is invoked at
// plan time, before any apply attempt is made.
func (g *Graph) FindCycle() *CycleError {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)

	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = grey
		stack = append(stack, id)

		node := g.Nodes[id]
		deps := append([]string(nil), node.DependsOn...)
		sort.Strings(deps)
		for _, depID := range deps {
			switch color[depID] {
			case white:
				if cycle := visit(depID); cycle != nil {
					return cycle
				}
			case grey:
				// Found a back edge; slice the current path from the first
				// occurrence of depID to close the loop.
				for i, onPath := range stack {
					if onPath == depID {
						cycle := append([]string(nil), stack[i:]...)
						cycle = append(cycle, depID)
						return &CycleError{Nodes: cycle}
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.SortedIDs() {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// ReadyGroups partitions the graph into ordered groups of nodes whose
// dependencies all appear in earlier groups. Applying the groups in order,
// with any ordering (including parallel) inside a group, respects every
// dependency edge. No order is promised between nodes of the same group.
func (g *Graph) ReadyGroups() ([][]string, error) {
	remaining := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		count := 0
		for _, dep := range node.DependsOn {
			if _, ok := g.Nodes[dep]; ok {
				count++
			}
		}
		remaining[id] = count
	}

	done := make(map[string]bool, len(g.Nodes))
	var groups [][]string

	for len(done) < len(g.Nodes) {
		var group []string
		for id, count := range remaining {
			if count == 0 && !done[id] {
				group = append(group, id)
			}
		}

		if len(group) == 0 {
			// No progress with nodes remaining implies an undetected cycle.
			var stuck []string
			for id := range g.Nodes {
				if !done[id] {
					stuck = append(stuck, id)
				}
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("scheduler made no progress; unresolved nodes: %s", strings.Join(stuck, ", "))
		}

		sort.Strings(group)
		groups = append(groups, group)

		for _, id := range group {
			done[id] = true
			for _, dependent := range g.Nodes[id].DependedOnBy {
				if _, ok := remaining[dependent]; ok {
					remaining[dependent]--
				}
			}
		}
	}

	return groups, nil
}

// AllTerminal reports whether every node reached a final status.
func (g *Graph) AllTerminal() bool {
	for _, node := range g.Nodes {
		if !node.Terminal() {
			return false
		}
	}
	return true
}

// HasFailed reports whether any node failed.
func (g *Graph) HasFailed() bool {
	for _, node := range g.Nodes {
		if node.Status == StatusFailed {
			return true
		}
	}
	return false
}
