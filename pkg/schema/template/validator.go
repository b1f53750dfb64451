package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evidlab-io/evidctl/pkg/errors"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate performs structural validation of a parsed template, collecting
// every problem it can find rather than stopping at the first.
func Validate(tmpl *Template) error {
	var list errors.List

	seenVars := make(map[string]bool)
	for _, v := range tmpl.Variables {
		if seenVars[v.Name] {
			list.Append(errors.ValidationError(
				fmt.Sprintf("variable %q declared more than once", v.Name),
				map[string]interface{}{"variable": v.Name},
			))
		}
		seenVars[v.Name] = true

		switch v.Type {
		case "", "string", "number", "bool", "list", "map":
		default:
			list.Append(errors.ValidationError(
				fmt.Sprintf("variable %q has unsupported type %q", v.Name, v.Type),
				map[string]interface{}{"variable": v.Name, "type": v.Type},
			))
		}
	}

	seenResources := make(map[string]bool)
	for i := range tmpl.Resources {
		r := &tmpl.Resources[i]
		validateResource(r, &list)

		if seenResources[r.ID()] {
			list.Append(errors.ValidationError(
				fmt.Sprintf("resource %s declared more than once", r.ID()),
				map[string]interface{}{"resource": r.ID()},
			))
		}
		seenResources[r.ID()] = true
	}

	// Explicit dependencies must name declared resources.
	for i := range tmpl.Resources {
		r := &tmpl.Resources[i]
		for _, dep := range r.DependsOn {
			if !strings.Contains(dep, ".") {
				list.Append(errors.ValidationError(
					fmt.Sprintf("resource %s: depends_on entry %q is not of the form \"type.name\"", r.ID(), dep),
					map[string]interface{}{"resource": r.ID(), "dependency": dep},
				))
				continue
			}
			if !seenResources[dep] {
				list.Append(errors.New(errors.ErrCodeUnknownNode,
					fmt.Sprintf("resource %s: depends_on references undeclared resource %q", r.ID(), dep)))
			}
			if dep == r.ID() {
				list.Append(errors.ValidationError(
					fmt.Sprintf("resource %s depends on itself", r.ID()),
					map[string]interface{}{"resource": r.ID()},
				))
			}
		}
	}

	seenOutputs := make(map[string]bool)
	for _, o := range tmpl.Outputs {
		if seenOutputs[o.Name] {
			list.Append(errors.ValidationError(
				fmt.Sprintf("output %q declared more than once", o.Name),
				map[string]interface{}{"output": o.Name},
			))
		}
		seenOutputs[o.Name] = true
	}

	return list.Err()
}

func validateResource(r *ResourceBlock, list *errors.List) {
	if !identifierPattern.MatchString(r.Type) {
		list.Append(errors.ValidationError(
			fmt.Sprintf("resource type %q is not a valid identifier", r.Type),
			map[string]interface{}{"resource": r.ID()},
		))
	}
	if !identifierPattern.MatchString(r.Name) {
		list.Append(errors.ValidationError(
			fmt.Sprintf("resource name %q is not a valid identifier", r.Name),
			map[string]interface{}{"resource": r.ID()},
		))
	}

	seenKeys := make(map[string]bool)
	for _, key := range r.OutputKeys {
		if seenKeys[key] {
			list.Append(errors.ValidationError(
				fmt.Sprintf("resource %s declares output %q more than once", r.ID(), key),
				map[string]interface{}{"resource": r.ID(), "output": key},
			))
		}
		seenKeys[key] = true
	}

	// The alternate-scope pattern is strictly pairwise: a resource either has
	// no variants or exactly two, each with its own condition.
	if r.HasVariants() {
		if len(r.Variants) != 2 {
			list.Append(errors.New(errors.ErrCodeVariantConflict,
				fmt.Sprintf("resource %s declares %d variants; alternate scopes come in pairs", r.ID(), len(r.Variants))))
		}
		if r.WhenExpr != nil {
			list.Append(errors.ValidationError(
				fmt.Sprintf("resource %s has both a when condition and variants; put conditions on the variants", r.ID()),
				map[string]interface{}{"resource": r.ID()},
			))
		}
		labels := make(map[string]bool)
		for _, v := range r.Variants {
			if labels[v.Label] {
				list.Append(errors.New(errors.ErrCodeVariantConflict,
					fmt.Sprintf("resource %s declares variant %q more than once", r.ID(), v.Label)))
			}
			labels[v.Label] = true
		}
	}
}
