package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidlab-io/evidctl/pkg/errors"
)

func parseValid(t *testing.T, src string) *Template {
	t.Helper()
	tmpl, diags, err := NewParser().ParseBytes([]byte(src), "test.hcl")
	require.NoError(t, err, "diagnostics: %s", diags.Error())
	return tmpl
}

func TestValidate_OK(t *testing.T) {
	tmpl := parseValid(t, captureTemplate)
	assert.NoError(t, Validate(tmpl))
}

func TestValidate_DuplicateVariable(t *testing.T) {
	tmpl := parseValid(t, `
variable "case_id" {}
variable "case_id" {}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared more than once")
}

func TestValidate_UnsupportedVariableType(t *testing.T) {
	tmpl := parseValid(t, `
variable "case_id" {
  type = tuple
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestValidate_DuplicateResource(t *testing.T) {
	tmpl := parseValid(t, `
resource "vm" "analysis" {}
resource "vm" "analysis" {}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource vm.analysis declared more than once")
}

func TestValidate_BadIdentifiers(t *testing.T) {
	tmpl := &Template{
		Resources: []ResourceBlock{
			{Type: "Virtual-Machine", Name: "analysis"},
			{Type: "vm", Name: "9lives"},
		},
	}
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid identifier")
}

func TestValidate_DependsOn(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "malformed entry",
			src: `
resource "vm" "analysis" {
  depends_on = ["network"]
}
`,
			want: `not of the form "type.name"`,
		},
		{
			name: "undeclared resource",
			src: `
resource "vm" "analysis" {
  depends_on = ["network.isolated"]
}
`,
			want: "undeclared resource",
		},
		{
			name: "self dependency",
			src: `
resource "vm" "analysis" {
  depends_on = ["vm.analysis"]
}
`,
			want: "depends on itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(parseValid(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DuplicateOutputKey(t *testing.T) {
	tmpl := parseValid(t, `
resource "vm" "analysis" {
  outputs = ["instance_id", "instance_id"]
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestValidate_VariantCount(t *testing.T) {
	tmpl := parseValid(t, `
variable "pick" {
  type = bool
}

resource "resource_group" "case" {
  variant "only" {
    when = var.pick
  }
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alternate scopes come in pairs")
	assert.True(t, errors.Is(err, errors.ErrCodeVariantConflict))
}

func TestValidate_VariantWithResourceCondition(t *testing.T) {
	tmpl := parseValid(t, `
variable "pick" {
  type = bool
}

resource "resource_group" "case" {
  when = var.pick

  variant "a" {
    when = var.pick
  }

  variant "b" {
    when = !var.pick
  }
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put conditions on the variants")
}

func TestValidate_DuplicateVariantLabel(t *testing.T) {
	tmpl := parseValid(t, `
variable "pick" {
  type = bool
}

resource "resource_group" "case" {
  variant "same" {
    when = var.pick
  }

  variant "same" {
    when = !var.pick
  }
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variant "same" more than once`)
}

func TestValidate_DuplicateOutputBlock(t *testing.T) {
	tmpl := parseValid(t, `
resource "vm" "analysis" {
  outputs = ["instance_id"]
}

output "id" {
  value = resource.vm.analysis.outputs.instance_id
}

output "id" {
  value = resource.vm.analysis.outputs.instance_id
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "id" declared more than once`)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	tmpl := parseValid(t, `
variable "case_id" {}
variable "case_id" {}

resource "vm" "analysis" {
  depends_on = ["network"]
}
`)
	err := Validate(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared more than once")
	assert.Contains(t, err.Error(), `not of the form "type.name"`)
}
