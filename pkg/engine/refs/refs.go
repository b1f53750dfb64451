// Package refs discovers and resolves references to resource outputs inside
// template expressions. A reference of the form
// resource.<type>.<name>.outputs.<key> names an output of another node;
// discovering one produces a dependency edge, and resolving one substitutes
// the producer's recorded output value.
package refs

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/pkg/engine/outputs"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

// Ref is a reference from an expression to another node's output.
type Ref struct {
	// NodeID is the producer's "type.name" identity.
	NodeID string

	// Output is the referenced output key.
	Output string

	Range hcl.Range
}

// UnknownNodeError reports a reference to an undeclared resource.
type UnknownNodeError struct {
	Node     string
	Consumer string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("%s references unknown resource %s", e.Consumer, e.Node)
}

// UnknownOutputError reports a reference to an output key the producer does
// not declare.
type UnknownOutputError struct {
	Node     string
	Output   string
	Consumer string
}

func (e *UnknownOutputError) Error() string {
	return fmt.Sprintf("%s references output %q which resource %s does not declare", e.Consumer, e.Output, e.Node)
}

// UnresolvedReferenceError reports an attempt to substitute a reference
// before its producer reached a terminal status. It indicates an ordering bug
// in graph construction, not a configuration mistake, and is fatal.
type UnresolvedReferenceError struct {
	Node     string
	Output   string
	Consumer string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("internal: %s read output %q of %s before it was satisfied", e.Consumer, e.Output, e.Node)
}

// Discover walks an expression's variable traversals and returns every
// resource-output reference it contains. Traversals rooted elsewhere (e.g.
// var.*) are ignored. Malformed resource traversals are an error.
func Discover(expr hcl.Expression) ([]Ref, error) {
	if expr == nil {
		return nil, nil
	}

	var found []Ref
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "resource" {
			continue
		}

		ref, err := parseResourceTraversal(traversal)
		if err != nil {
			return nil, err
		}
		found = append(found, *ref)
	}

	return found, nil
}

// VarNames returns every variable name an expression reads via var.*.
func VarNames(expr hcl.Expression) []string {
	if expr == nil {
		return nil
	}

	var names []string
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "var" || len(traversal) < 2 {
			continue
		}
		if attr, ok := traversal[1].(hcl.TraverseAttr); ok {
			names = append(names, attr.Name)
		}
	}
	return names
}

func parseResourceTraversal(traversal hcl.Traversal) (*Ref, error) {
	rng := traversal.SourceRange()

	// Expect resource.<type>.<name>.outputs.<key>
	if len(traversal) < 5 {
		return nil, fmt.Errorf("%s: incomplete resource reference; expected resource.<type>.<name>.outputs.<key>", rng)
	}

	typeAttr, typeOk := traversal[1].(hcl.TraverseAttr)
	nameAttr, nameOk := traversal[2].(hcl.TraverseAttr)
	outsAttr, outsOk := traversal[3].(hcl.TraverseAttr)
	keyAttr, keyOk := traversal[4].(hcl.TraverseAttr)

	if !typeOk || !nameOk || !outsOk || !keyOk || outsAttr.Name != "outputs" {
		return nil, fmt.Errorf("%s: malformed resource reference; expected resource.<type>.<name>.outputs.<key>", rng)
	}

	return &Ref{
		NodeID: fmt.Sprintf("%s.%s", typeAttr.Name, nameAttr.Name),
		Output: keyAttr.Name,
		Range:  rng,
	}, nil
}

// EvalContext builds the HCL evaluation context from the parameter set and
// the outputs recorded so far. Skipped nodes appear with null output values,
// so consumers that branch on the producer's condition can still evaluate;
// dereferencing an absent output yields null, never a stale value.
func EvalContext(params map[string]cty.Value, set *outputs.Set) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var":      cty.ObjectVal(params),
			"resource": resourcesValue(set),
		},
		Functions: template.Functions(),
	}
}

// resourcesValue shapes the recorded output set into the nested object the
// resource.* traversals navigate: type -> name -> {outputs: {...}}.
func resourcesValue(set *outputs.Set) cty.Value {
	byType := make(map[string]map[string]cty.Value)

	for nodeID, entry := range set.Snapshot() {
		resourceType, name, ok := strings.Cut(nodeID, ".")
		if !ok {
			continue
		}

		outVals := make(map[string]cty.Value, len(entry))
		for key, val := range entry {
			outVals[key] = val.Val
		}
		node := cty.ObjectVal(map[string]cty.Value{
			"outputs": objectOrEmpty(outVals),
		})

		if byType[resourceType] == nil {
			byType[resourceType] = make(map[string]cty.Value)
		}
		byType[resourceType][name] = node
	}

	typeVals := make(map[string]cty.Value, len(byType))
	for resourceType, names := range byType {
		typeVals[resourceType] = cty.ObjectVal(names)
	}
	return objectOrEmpty(typeVals)
}

func objectOrEmpty(vals map[string]cty.Value) cty.Value {
	if len(vals) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vals)
}
