// Package graph provides dependency graph construction and traversal for evidctl.
package graph

import (
	"github.com/hashicorp/hcl/v2"
)

// Status tracks a node through a provisioning run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusApplying  Status = "applying"
	StatusSatisfied Status = "satisfied"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// SkipReason explains why a node was skipped.
type SkipReason string

const (
	// SkipConditionFalse marks a node whose existence condition evaluated
	// false against the parameter set. Such nodes never enter the DAG.
	SkipConditionFalse SkipReason = "condition"

	// SkipUpstreamFailure marks a node skipped because a node it depends on
	// (directly or transitively) failed to apply.
	SkipUpstreamFailure SkipReason = "upstream-failure"
)

// Node is a single provisionable unit in the dependency graph.
type Node struct {
	// Unique identity within the graph, "type.name".
	ID string

	// Resource-type tag handed to the provider.
	Type string

	// Resource name within the template.
	Name string

	// Variant label when the node came from an alternate-scope pair,
	// empty otherwise.
	Variant string

	// Properties holds the unevaluated property expressions. References to
	// other nodes' outputs are substituted immediately before apply.
	Properties map[string]hcl.Expression

	// OutputKeys lists the output names the provider populates.
	OutputKeys []string

	// DependsOn holds IDs of nodes this node waits on.
	DependsOn []string

	// DependedOnBy holds IDs of nodes waiting on this node.
	DependedOnBy []string

	// Status and SkipReason track run progress. Only the executor mutates
	// them, under its own lock.
	Status     Status
	SkipReason SkipReason

	// Err records the provider error when Status is StatusFailed.
	Err error
}

// NewNode creates a pending graph node.
func NewNode(resourceType, name string) *Node {
	return &Node{
		ID:         resourceType + "." + name,
		Type:       resourceType,
		Name:       name,
		Properties: make(map[string]hcl.Expression),
		Status:     StatusPending,
	}
}

// AddDependency records a dependency edge on this node, ignoring duplicates.
func (n *Node) AddDependency(nodeID string) {
	for _, dep := range n.DependsOn {
		if dep == nodeID {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, nodeID)
}

// AddDependent records a dependent edge on this node, ignoring duplicates.
func (n *Node) AddDependent(nodeID string) {
	for _, dep := range n.DependedOnBy {
		if dep == nodeID {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, nodeID)
}

// Terminal reports whether the node has reached a final status.
func (n *Node) Terminal() bool {
	switch n.Status {
	case StatusSatisfied, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}
