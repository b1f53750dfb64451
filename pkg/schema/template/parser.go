package template

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Parser parses capture-environment templates.
type Parser struct {
	parser *hclparse.Parser
}

// NewParser creates a new template parser.
func NewParser() *Parser {
	return &Parser{
		parser: hclparse.NewParser(),
	}
}

// Parse parses a template from the given file path.
func (p *Parser) Parse(path string) (*Template, hcl.Diagnostics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses a template from raw bytes.
func (p *Parser) ParseBytes(data []byte, filename string) (*Template, hcl.Diagnostics, error) {
	file, diags := p.parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}

	tmpl := &Template{Source: filename}

	bodySchema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "resource", LabelNames: []string{"type", "name"}},
			{Type: "output", LabelNames: []string{"name"}},
		},
	}

	content, moreDiags := file.Body.Content(bodySchema)
	diags = append(diags, moreDiags...)

	for _, block := range content.Blocks.OfType("variable") {
		variable, blockDiags := p.parseVariable(block)
		diags = append(diags, blockDiags...)
		if variable != nil {
			tmpl.Variables = append(tmpl.Variables, *variable)
		}
	}

	for _, block := range content.Blocks.OfType("resource") {
		resource, blockDiags := p.parseResource(block)
		diags = append(diags, blockDiags...)
		if resource != nil {
			tmpl.Resources = append(tmpl.Resources, *resource)
		}
	}

	for _, block := range content.Blocks.OfType("output") {
		output, blockDiags := p.parseOutput(block)
		diags = append(diags, blockDiags...)
		if output != nil {
			tmpl.Outputs = append(tmpl.Outputs, *output)
		}
	}

	if diags.HasErrors() {
		return tmpl, diags, fmt.Errorf("invalid template: %s", diags.Error())
	}

	return tmpl, diags, nil
}

func (p *Parser) parseVariable(block *hcl.Block) (*VariableBlock, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	varSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "type"},
			{Name: "description"},
			{Name: "default"},
			{Name: "sensitive"},
		},
	}

	content, moreDiags := block.Body.Content(varSchema)
	diags = append(diags, moreDiags...)

	variable := &VariableBlock{
		Name: block.Labels[0],
	}

	if attr, ok := content.Attributes["type"]; ok {
		// A type constraint keyword (string, number, bool, list, map),
		// not an expression to evaluate.
		variable.Type = hcl.ExprAsKeyword(attr.Expr)
	}

	if attr, ok := content.Attributes["description"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() {
			variable.Description = val.AsString()
		}
	}

	if attr, ok := content.Attributes["default"]; ok {
		variable.Default = attr
		val, valDiags := attr.Expr.Value(nil)
		if !valDiags.HasErrors() {
			variable.DefaultValue = val
		}
	}

	if attr, ok := content.Attributes["sensitive"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() && val.Type() == cty.Bool {
			variable.Sensitive = val.True()
		}
	}

	return variable, diags
}

func (p *Parser) parseResource(block *hcl.Block) (*ResourceBlock, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	resSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "when"},
			{Name: "depends_on"},
			{Name: "outputs"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "properties"},
			{Type: "variant", LabelNames: []string{"label"}},
		},
	}

	content, moreDiags := block.Body.Content(resSchema)
	diags = append(diags, moreDiags...)

	resource := &ResourceBlock{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["when"]; ok {
		// Raw expression, evaluated against the parameter set at plan time.
		resource.WhenExpr = attr.Expr
	}

	if attr, ok := content.Attributes["depends_on"]; ok {
		deps, depDiags := p.parseStringList(attr, "depends_on")
		diags = append(diags, depDiags...)
		resource.DependsOn = deps
	}

	if attr, ok := content.Attributes["outputs"]; ok {
		keys, keyDiags := p.parseStringList(attr, "outputs")
		diags = append(diags, keyDiags...)
		resource.OutputKeys = keys
	}

	for _, propBlock := range content.Blocks.OfType("properties") {
		props, propDiags := p.parseProperties(propBlock)
		diags = append(diags, propDiags...)
		if resource.Properties != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate properties block",
				Detail:   fmt.Sprintf("Resource %s.%s declares more than one properties block.", resource.Type, resource.Name),
				Subject:  propBlock.DefRange.Ptr(),
			})
			continue
		}
		resource.Properties = props
	}

	for _, varBlock := range content.Blocks.OfType("variant") {
		variant, varDiags := p.parseVariant(varBlock)
		diags = append(diags, varDiags...)
		if variant != nil {
			resource.Variants = append(resource.Variants, *variant)
		}
	}

	return resource, diags
}

func (p *Parser) parseVariant(block *hcl.Block) (*VariantBlock, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	variantSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "when", Required: true},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "properties"},
		},
	}

	content, moreDiags := block.Body.Content(variantSchema)
	diags = append(diags, moreDiags...)

	variant := &VariantBlock{
		Label:     block.Labels[0],
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["when"]; ok {
		variant.WhenExpr = attr.Expr
	}

	for _, propBlock := range content.Blocks.OfType("properties") {
		props, propDiags := p.parseProperties(propBlock)
		diags = append(diags, propDiags...)
		variant.Properties = props
		break
	}

	return variant, diags
}

// parseProperties keeps property expressions unevaluated; references to other
// resources' outputs are resolved by the engine once producers are satisfied.
func (p *Parser) parseProperties(block *hcl.Block) (map[string]hcl.Expression, hcl.Diagnostics) {
	attrs, diags := block.Body.JustAttributes()

	props := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		props[name] = attr.Expr
	}

	return props, diags
}

func (p *Parser) parseOutput(block *hcl.Block) (*OutputBlock, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	outSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "value", Required: true},
		},
	}

	content, moreDiags := block.Body.Content(outSchema)
	diags = append(diags, moreDiags...)

	output := &OutputBlock{
		Name:      block.Labels[0],
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["value"]; ok {
		output.ValueExpr = attr.Expr
	}

	return output, diags
}

// parseStringList evaluates an attribute that must be a static list of strings.
func (p *Parser) parseStringList(attr *hcl.Attribute, name string) ([]string, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	val, valDiags := attr.Expr.Value(nil)
	diags = append(diags, valDiags...)
	if valDiags.HasErrors() {
		return nil, diags
	}

	if !val.Type().IsListType() && !val.Type().IsTupleType() {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s", name),
			Detail:   fmt.Sprintf("%s must be a static list of strings.", name),
			Subject:  attr.Range.Ptr(),
		})
		return nil, diags
	}

	var result []string
	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.Type() != cty.String || v.IsNull() {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  fmt.Sprintf("Invalid %s element", name),
				Detail:   fmt.Sprintf("Every %s element must be a string.", name),
				Subject:  attr.Range.Ptr(),
			})
			continue
		}
		result = append(result, v.AsString())
	}

	return result, diags
}
