// Package condition evaluates resource existence conditions against the
// parameter set and selects the active variant of alternate-scope pairs.
package condition

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/evidlab-io/evidctl/pkg/errors"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

// Evaluator evaluates existence conditions. Conditions are pure boolean
// functions of the parameter set: they may read var.* and nothing else, so
// the active/inactive partition of the graph is fixed before any node is
// applied.
type Evaluator struct {
	ctx *hcl.EvalContext
}

// New creates an evaluator over the given parameter set.
func New(params map[string]cty.Value) *Evaluator {
	return &Evaluator{
		ctx: &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"var": cty.ObjectVal(params),
			},
			Functions: template.Functions(),
		},
	}
}

// Evaluate evaluates a when condition. A nil expression means always active.
func (e *Evaluator) Evaluate(expr hcl.Expression) (bool, error) {
	if expr == nil {
		return true, nil
	}

	if err := e.checkPure(expr); err != nil {
		return false, err
	}

	val, diags := expr.Value(e.ctx)
	if diags.HasErrors() {
		return false, errors.Wrap(errors.ErrCodeCondition,
			"failed to evaluate when condition", fmt.Errorf("%s", diags.Error()))
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil || boolVal.IsNull() {
		return false, errors.New(errors.ErrCodeCondition,
			fmt.Sprintf("when condition must be a boolean, got %s", val.Type().FriendlyName()))
	}

	return boolVal.True(), nil
}

// checkPure rejects conditions that read anything other than variables.
// Depending on another node's runtime outputs would make the active set
// unknowable before execution.
func (e *Evaluator) checkPure(expr hcl.Expression) error {
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "var" {
			return errors.New(errors.ErrCodeCondition,
				fmt.Sprintf("when condition reads %s; conditions may only reference var.*", traversal.RootName()))
		}
	}
	return nil
}

// Selection is the outcome of evaluating one resource's conditions.
type Selection struct {
	// Active reports whether the resource participates in this run.
	Active bool

	// Variant is the selected alternate-scope variant, nil for plain
	// resources.
	Variant *template.VariantBlock
}

// Select evaluates a resource's conditions. For a plain resource this is the
// when condition alone. For an alternate-scope pair both variant conditions
// are evaluated: they must be mutually exclusive and jointly exhaustive under
// the given parameter set, so exactly one variant is active. Both-active and
// neither-active states are configuration errors.
func (e *Evaluator) Select(r *template.ResourceBlock) (Selection, error) {
	if !r.HasVariants() {
		active, err := e.Evaluate(r.WhenExpr)
		if err != nil {
			return Selection{}, errors.Wrap(errors.ErrCodeCondition,
				fmt.Sprintf("resource %s", r.ID()), err)
		}
		return Selection{Active: active}, nil
	}

	var activeVariants []*template.VariantBlock
	for i := range r.Variants {
		v := &r.Variants[i]
		active, err := e.Evaluate(v.WhenExpr)
		if err != nil {
			return Selection{}, errors.Wrap(errors.ErrCodeCondition,
				fmt.Sprintf("resource %s variant %q", r.ID(), v.Label), err)
		}
		if active {
			activeVariants = append(activeVariants, v)
		}
	}

	switch len(activeVariants) {
	case 1:
		return Selection{Active: true, Variant: activeVariants[0]}, nil
	case 0:
		return Selection{}, errors.New(errors.ErrCodeVariantConflict,
			fmt.Sprintf("resource %s: no variant condition holds; alternate conditions must be jointly exhaustive", r.ID()))
	default:
		labels := make([]string, len(activeVariants))
		for i, v := range activeVariants {
			labels[i] = v.Label
		}
		return Selection{}, errors.New(errors.ErrCodeVariantConflict,
			fmt.Sprintf("resource %s: variants %v are simultaneously active; alternate conditions must be mutually exclusive", r.ID(), labels))
	}
}
