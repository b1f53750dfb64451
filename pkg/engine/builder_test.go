package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/pkg/errors"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

const captureTemplate = `
variable "case_id" {
  type = string
}

variable "capture_network" {
  type    = bool
  default = true
}

variable "use_existing_group" {
  type    = bool
  default = false
}

resource "resource_group" "case" {
  outputs = ["group_id"]

  variant "existing" {
    when = var.use_existing_group

    properties {
      lookup_name = "forensics-${var.case_id}"
    }
  }

  variant "new" {
    when = !var.use_existing_group

    properties {
      name = "forensics-${var.case_id}"
    }
  }
}

resource "network" "isolated" {
  when    = var.capture_network
  outputs = ["network_id"]

  properties {
    group = resource.resource_group.case.outputs.group_id
    cidr  = "10.40.0.0/24"
  }
}

resource "automation" "collector" {
  outputs = ["playbook_id"]

  properties {
    name = "collect-${var.case_id}"
  }
}

resource "vm" "analysis" {
  outputs = ["instance_id"]

  properties {
    group   = resource.resource_group.case.outputs.group_id
    network = resource.network.isolated.outputs.network_id
  }
}

resource "storage" "evidence" {
  depends_on = ["automation.collector"]
  outputs    = ["bucket_url"]

  properties {
    source   = resource.vm.analysis.outputs.instance_id
    playbook = resource.automation.collector.outputs.playbook_id
  }
}

output "bucket_url" {
  value = resource.storage.evidence.outputs.bucket_url
}

output "network_id" {
  value = resource.network.isolated.outputs.network_id
}
`

func parseTemplate(t *testing.T, src string) *template.Template {
	t.Helper()
	tmpl, diags, err := template.NewParser().ParseBytes([]byte(src), "test.hcl")
	require.NoError(t, err, "diagnostics: %s", diags.Error())
	return tmpl
}

func captureParams(overrides map[string]cty.Value) map[string]cty.Value {
	params := map[string]cty.Value{
		"case_id":            cty.StringVal("2026-0142"),
		"capture_network":    cty.True,
		"use_existing_group": cty.False,
	}
	for k, v := range overrides {
		params[k] = v
	}
	return params
}

func TestBuildPlan_Waves(t *testing.T) {
	plan, err := BuildPlan(parseTemplate(t, captureTemplate), captureParams(nil))
	require.NoError(t, err)

	expected := [][]string{
		{"automation.collector", "resource_group.case"},
		{"network.isolated"},
		{"vm.analysis"},
		{"storage.evidence"},
	}
	assert.Equal(t, expected, plan.Groups)
	assert.Empty(t, plan.Skipped)
}

func TestBuildPlan_ImplicitEdges(t *testing.T) {
	plan, err := BuildPlan(parseTemplate(t, captureTemplate), captureParams(nil))
	require.NoError(t, err)

	vm := plan.Graph.Node("vm.analysis")
	require.NotNil(t, vm)
	assert.ElementsMatch(t, []string{"resource_group.case", "network.isolated"}, vm.DependsOn)

	storage := plan.Graph.Node("storage.evidence")
	require.NotNil(t, storage)
	assert.ElementsMatch(t, []string{"automation.collector", "vm.analysis"}, storage.DependsOn)
}

func TestBuildPlan_VariantSelection(t *testing.T) {
	plan, err := BuildPlan(parseTemplate(t, captureTemplate), captureParams(nil))
	require.NoError(t, err)

	group := plan.Graph.Node("resource_group.case")
	require.NotNil(t, group)
	assert.Equal(t, "new", group.Variant)
	assert.Contains(t, group.Properties, "name")
	assert.NotContains(t, group.Properties, "lookup_name")

	plan, err = BuildPlan(parseTemplate(t, captureTemplate), captureParams(map[string]cty.Value{
		"use_existing_group": cty.True,
	}))
	require.NoError(t, err)

	group = plan.Graph.Node("resource_group.case")
	assert.Equal(t, "existing", group.Variant)
	assert.Contains(t, group.Properties, "lookup_name")
}

func TestBuildPlan_VariantOverridesSharedProperties(t *testing.T) {
	src := `
variable "flag" {
  type = bool
}

resource "resource_group" "case" {
  outputs = ["group_id"]

  properties {
    location = "shared-location"
    tier     = "standard"
  }

  variant "a" {
    when = var.flag

    properties {
      tier = "premium"
    }
  }

  variant "b" {
    when = !var.flag
  }
}
`
	plan, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{"flag": cty.True})
	require.NoError(t, err)

	node := plan.Graph.Node("resource_group.case")
	require.NotNil(t, node)
	assert.Contains(t, node.Properties, "location")

	val, diags := node.Properties["tier"].Value(nil)
	require.False(t, diags.HasErrors())
	assert.Equal(t, "premium", val.AsString())
}

func TestBuildPlan_ConditionSkip(t *testing.T) {
	plan, err := BuildPlan(parseTemplate(t, captureTemplate), captureParams(map[string]cty.Value{
		"capture_network": cty.False,
	}))
	require.NoError(t, err)

	assert.Nil(t, plan.Graph.Node("network.isolated"))
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "network.isolated", plan.Skipped[0].ID)
	assert.Equal(t, []string{"network_id"}, plan.Skipped[0].OutputKeys)
	assert.True(t, plan.IsSkipped("network.isolated"))
	assert.False(t, plan.IsSkipped("vm.analysis"))

	// The reference to the skipped producer creates no edge, so the VM
	// moves up a wave.
	vm := plan.Graph.Node("vm.analysis")
	assert.ElementsMatch(t, []string{"resource_group.case"}, vm.DependsOn)

	expected := [][]string{
		{"automation.collector", "resource_group.case"},
		{"vm.analysis"},
		{"storage.evidence"},
	}
	assert.Equal(t, expected, plan.Groups)
}

func TestBuildPlan_DependsOnSkippedResourceDropped(t *testing.T) {
	src := `
variable "flag" {
  type    = bool
  default = false
}

resource "network" "isolated" {
  when    = var.flag
  outputs = ["network_id"]
}

resource "vm" "analysis" {
  depends_on = ["network.isolated"]
}
`
	plan, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{"flag": cty.False})
	require.NoError(t, err)

	vm := plan.Graph.Node("vm.analysis")
	require.NotNil(t, vm)
	assert.Empty(t, vm.DependsOn)
}

func TestBuildPlan_UnknownResourceReference(t *testing.T) {
	src := `
resource "vm" "analysis" {
  properties {
    network = resource.network.isolated.outputs.network_id
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource network.isolated")
}

func TestBuildPlan_UndeclaredOutputReference(t *testing.T) {
	src := `
resource "network" "isolated" {
  outputs = ["network_id"]
}

resource "vm" "analysis" {
  properties {
    subnet = resource.network.isolated.outputs.subnet_id
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "subnet_id"`)
	assert.Contains(t, err.Error(), "does not declare")
}

func TestBuildPlan_UndeclaredVariable(t *testing.T) {
	src := `
resource "vm" "analysis" {
  properties {
    size = var.vm_size
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), `undeclared variable "vm_size"`)
}

func TestBuildPlan_OutputReferenceValidation(t *testing.T) {
	src := `
output "broken" {
  value = resource.vm.missing.outputs.instance_id
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "broken"`)
	assert.Contains(t, err.Error(), "unknown resource vm.missing")
}

func TestBuildPlan_Cycle(t *testing.T) {
	src := `
resource "vm" "a" {
  outputs = ["id"]

  properties {
    peer = resource.vm.b.outputs.id
  }
}

resource "vm" "b" {
  outputs = ["id"]

  properties {
    peer = resource.vm.a.outputs.id
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
	assert.Contains(t, err.Error(), "not provisionable")
}

func TestBuildPlan_VariantConflict(t *testing.T) {
	src := `
variable "a" {
  type = bool
}

variable "b" {
  type = bool
}

resource "resource_group" "case" {
  variant "x" {
    when = var.a
  }

  variant "y" {
    when = var.b
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{
		"a": cty.True,
		"b": cty.True,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeVariantConflict))

	_, err = BuildPlan(parseTemplate(t, src), map[string]cty.Value{
		"a": cty.False,
		"b": cty.False,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeVariantConflict))
}

func TestBuildPlan_CollectsAllReferenceErrors(t *testing.T) {
	src := `
resource "network" "isolated" {
  outputs = ["network_id"]
}

resource "vm" "analysis" {
  properties {
    subnet = resource.network.isolated.outputs.subnet_id
    size   = var.vm_size
  }
}
`
	_, err := BuildPlan(parseTemplate(t, src), map[string]cty.Value{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output "subnet_id"`)
	assert.Contains(t, err.Error(), `undeclared variable "vm_size"`)
}
