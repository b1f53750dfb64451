package engine

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/pkg/engine/condition"
	"github.com/evidlab-io/evidctl/pkg/engine/refs"
	"github.com/evidlab-io/evidctl/pkg/errors"
	"github.com/evidlab-io/evidctl/pkg/graph"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

// Plan is the fully resolved execution plan for one parameter set: the
// dependency graph over active nodes, the nodes pruned by their existence
// conditions, and the parallel-ready execution groups.
type Plan struct {
	Graph *graph.Graph

	// Skipped holds the resources whose existence condition evaluated
	// false. They are not part of the graph; their declared output keys
	// resolve to absent markers.
	Skipped []SkippedNode

	// Groups is the wave schedule: every node in group i depends only on
	// nodes in groups before i, so a group's members may apply in parallel.
	Groups [][]string

	Template *template.Template
	Params   map[string]cty.Value
}

// SkippedNode records a resource pruned before graph construction.
type SkippedNode struct {
	ID         string
	Type       string
	Name       string
	OutputKeys []string
}

// IsSkipped reports whether the plan pruned the given node.
func (p *Plan) IsSkipped(id string) bool {
	for _, s := range p.Skipped {
		if s.ID == id {
			return true
		}
	}
	return false
}

// BuildPlan validates a template against a parameter set and constructs the
// execution plan. All configuration errors found during the pass are
// collected and reported together.
func BuildPlan(tmpl *template.Template, params map[string]cty.Value) (*Plan, error) {
	if err := template.Validate(tmpl); err != nil {
		return nil, err
	}

	eval := condition.New(params)
	plan := &Plan{
		Graph:    graph.NewGraph(),
		Template: tmpl,
		Params:   params,
	}

	var list errors.List

	// Partition resources into active nodes and condition-skipped ones.
	// Variant selection happens here too, so each active node carries the
	// merged property set of exactly one rendition.
	for i := range tmpl.Resources {
		r := &tmpl.Resources[i]
		sel, err := eval.Select(r)
		if err != nil {
			list.Append(err)
			continue
		}
		if !sel.Active {
			plan.Skipped = append(plan.Skipped, SkippedNode{
				ID:         r.ID(),
				Type:       r.Type,
				Name:       r.Name,
				OutputKeys: r.OutputKeys,
			})
			continue
		}

		node := graph.NewNode(r.Type, r.Name)
		node.OutputKeys = r.OutputKeys
		for k, expr := range r.Properties {
			node.Properties[k] = expr
		}
		if sel.Variant != nil {
			node.Variant = sel.Variant.Label
			for k, expr := range sel.Variant.Properties {
				node.Properties[k] = expr
			}
		}
		if err := plan.Graph.AddNode(node); err != nil {
			list.Append(err)
		}
	}

	if list.HasErrors() {
		return nil, list.Err()
	}

	// Edges: explicit depends_on first, then implicit edges discovered from
	// output references inside property expressions. Edges toward
	// condition-skipped resources are dropped rather than rejected; the
	// consumer sees absent markers instead.
	for _, id := range plan.Graph.SortedIDs() {
		node := plan.Graph.Node(id)
		r := tmpl.Resource(id)

		for _, dep := range r.DependsOn {
			if plan.IsSkipped(dep) {
				continue
			}
			if plan.Graph.Node(dep) == nil {
				list.Append(&refs.UnknownNodeError{Node: dep, Consumer: id})
				continue
			}
			if err := plan.Graph.AddEdge(id, dep); err != nil {
				list.Append(err)
			}
		}

		for _, key := range sortedPropertyKeys(node.Properties) {
			linkExpressionRefs(plan, tmpl, id, node.Properties[key], &list)
		}
	}

	// Top-level outputs participate in reference validation but not in the
	// graph; they are evaluated after the run completes.
	for i := range tmpl.Outputs {
		out := &tmpl.Outputs[i]
		consumer := fmt.Sprintf("output %q", out.Name)
		checkExpressionRefs(plan, tmpl, consumer, out.ValueExpr, &list)
		checkVarRefs(tmpl, consumer, out.ValueExpr, &list)
	}

	// Property and condition var.* references must name declared variables.
	for _, id := range plan.Graph.SortedIDs() {
		node := plan.Graph.Node(id)
		for _, key := range sortedPropertyKeys(node.Properties) {
			checkVarRefs(tmpl, id, node.Properties[key], &list)
		}
	}

	if list.HasErrors() {
		return nil, list.Err()
	}

	if cycle := plan.Graph.FindCycle(); cycle != nil {
		return nil, errors.Wrap(errors.ErrCodeCycle, "template is not provisionable", cycle)
	}

	groups, err := plan.Graph.ReadyGroups()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCycle, "failed to schedule execution groups", err)
	}
	plan.Groups = groups

	return plan, nil
}

// linkExpressionRefs adds dependency edges for every resource-output
// reference in expr, accumulating reference errors.
func linkExpressionRefs(plan *Plan, tmpl *template.Template, consumer string, expr hcl.Expression, list *errors.List) {
	found, err := refs.Discover(expr)
	if err != nil {
		list.Append(err)
		return
	}
	for _, ref := range found {
		producer := tmpl.Resource(ref.NodeID)
		if producer == nil {
			list.Append(&refs.UnknownNodeError{Node: ref.NodeID, Consumer: consumer})
			continue
		}
		if !producer.DeclaresOutput(ref.Output) {
			list.Append(&refs.UnknownOutputError{Node: ref.NodeID, Output: ref.Output, Consumer: consumer})
			continue
		}
		if plan.IsSkipped(ref.NodeID) {
			continue
		}
		if err := plan.Graph.AddEdge(consumer, ref.NodeID); err != nil {
			list.Append(err)
		}
	}
}

// checkExpressionRefs validates references without creating edges, for
// expressions that live outside the graph.
func checkExpressionRefs(plan *Plan, tmpl *template.Template, consumer string, expr hcl.Expression, list *errors.List) {
	found, err := refs.Discover(expr)
	if err != nil {
		list.Append(err)
		return
	}
	for _, ref := range found {
		producer := tmpl.Resource(ref.NodeID)
		if producer == nil {
			list.Append(&refs.UnknownNodeError{Node: ref.NodeID, Consumer: consumer})
			continue
		}
		if !producer.DeclaresOutput(ref.Output) {
			list.Append(&refs.UnknownOutputError{Node: ref.NodeID, Output: ref.Output, Consumer: consumer})
		}
	}
}

// checkVarRefs validates that every var.* traversal names a declared
// variable.
func checkVarRefs(tmpl *template.Template, consumer string, expr hcl.Expression, list *errors.List) {
	for _, name := range refs.VarNames(expr) {
		if tmpl.Variable(name) == nil {
			list.Append(errors.New(errors.ErrCodeValidation,
				fmt.Sprintf("%s references undeclared variable %q", consumer, name)))
		}
	}
}

func sortedPropertyKeys(props map[string]hcl.Expression) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
