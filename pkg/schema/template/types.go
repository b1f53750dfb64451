// Package template implements the evidctl capture-environment template schema.
package template

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Template is a parsed capture-environment template.
type Template struct {
	// Source path the template was loaded from, for error reporting.
	Source string

	Variables []VariableBlock
	Resources []ResourceBlock
	Outputs   []OutputBlock
}

// VariableBlock declares a template parameter.
type VariableBlock struct {
	Name         string
	Type         string
	Description  string
	Default      *hcl.Attribute
	DefaultValue cty.Value
	Sensitive    bool
}

// ResourceBlock declares a provisionable unit. A resource either carries a
// single properties block, or two variant blocks that describe mutually
// exclusive renditions of the same logical resource (e.g. a new vs. an
// existing resource group). A resource with variants must not also declare
// top-level properties of its own beyond shared ones.
type ResourceBlock struct {
	// Type is the resource-type tag handed to the provider (e.g. "network",
	// "vm", "storage_account").
	Type string

	// Name is the resource name, unique per type within a template.
	Name string

	// WhenExpr is the existence condition. Nil means always active.
	// Conditions may reference variables only, never other resources.
	WhenExpr hcl.Expression

	// DependsOn lists explicit dependencies as "type.name" identifiers.
	DependsOn []string

	// OutputKeys declares the output names the provider populates once the
	// resource is satisfied. References to undeclared keys are rejected at
	// plan time.
	OutputKeys []string

	// Properties maps property names to their unevaluated expressions.
	// Expressions may reference other resources' outputs; those references
	// become dependency edges.
	Properties map[string]hcl.Expression

	// Variants holds the alternate-scope renditions, when present.
	Variants []VariantBlock

	DeclRange hcl.Range
}

// ID returns the node identity for this resource within the graph.
func (r *ResourceBlock) ID() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// HasVariants reports whether this resource is declared as alternate scopes.
func (r *ResourceBlock) HasVariants() bool {
	return len(r.Variants) > 0
}

// DeclaresOutput reports whether key is among the declared output keys.
func (r *ResourceBlock) DeclaresOutput(key string) bool {
	for _, k := range r.OutputKeys {
		if k == key {
			return true
		}
	}
	return false
}

// VariantBlock is one alternate-scope rendition of a resource. Exactly one
// variant of a resource is active for any given parameter set; the variant
// conditions must be mutually exclusive and jointly exhaustive.
type VariantBlock struct {
	// Label distinguishes the variant (e.g. "new", "existing").
	Label string

	// WhenExpr selects this variant. Required.
	WhenExpr hcl.Expression

	// Properties for this variant, merged over the resource's shared ones.
	Properties map[string]hcl.Expression

	DeclRange hcl.Range
}

// OutputBlock declares a top-level template output.
type OutputBlock struct {
	Name      string
	ValueExpr hcl.Expression
	DeclRange hcl.Range
}

// Resource looks up a resource block by its "type.name" identity.
func (t *Template) Resource(id string) *ResourceBlock {
	for i := range t.Resources {
		if t.Resources[i].ID() == id {
			return &t.Resources[i]
		}
	}
	return nil
}

// Variable looks up a variable block by name.
func (t *Template) Variable(name string) *VariableBlock {
	for i := range t.Variables {
		if t.Variables[i].Name == name {
			return &t.Variables[i]
		}
	}
	return nil
}
