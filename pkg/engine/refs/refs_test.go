package refs

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/pkg/engine/outputs"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "parse %q: %s", src, diags.Error())
	return expr
}

func TestDiscover(t *testing.T) {
	expr := parseExpr(t, `"${resource.network.isolated.outputs.network_id}/${var.case_id}"`)

	found, err := Discover(expr)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "network.isolated", found[0].NodeID)
	assert.Equal(t, "network_id", found[0].Output)
}

func TestDiscover_Multiple(t *testing.T) {
	expr := parseExpr(t, `[resource.vm.analysis.outputs.instance_id, resource.network.isolated.outputs.subnet_id]`)

	found, err := Discover(expr)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "vm.analysis", found[0].NodeID)
	assert.Equal(t, "network.isolated", found[1].NodeID)
}

func TestDiscover_NoRefs(t *testing.T) {
	found, err := Discover(parseExpr(t, `var.case_id`))
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = Discover(nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscover_Malformed(t *testing.T) {
	tests := []string{
		`resource.network`,
		`resource.network.isolated`,
		`resource.network.isolated.network_id`,
		`resource.network.isolated.attrs.network_id`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Discover(parseExpr(t, src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "resource reference")
		})
	}
}

func TestVarNames(t *testing.T) {
	expr := parseExpr(t, `"${var.case_id}-${var.vm_size}-${resource.vm.analysis.outputs.instance_id}"`)
	assert.Equal(t, []string{"case_id", "vm_size"}, VarNames(expr))

	assert.Empty(t, VarNames(nil))
	assert.Empty(t, VarNames(parseExpr(t, `"literal"`)))
}

func TestEvalContext_ResolvesReference(t *testing.T) {
	set := outputs.NewSet()
	require.NoError(t, set.Record("network.isolated", map[string]cty.Value{
		"network_id": cty.StringVal("net-1"),
	}))

	ctx := EvalContext(map[string]cty.Value{
		"case_id": cty.StringVal("2026-0142"),
	}, set)

	expr := parseExpr(t, `"${resource.network.isolated.outputs.network_id}/${var.case_id}"`)
	val, diags := expr.Value(ctx)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "net-1/2026-0142", val.AsString())
}

func TestEvalContext_AbsentOutputIsNull(t *testing.T) {
	set := outputs.NewSet()
	require.NoError(t, set.MarkAbsent("network.isolated", []string{"network_id"}))

	ctx := EvalContext(map[string]cty.Value{}, set)

	expr := parseExpr(t, `resource.network.isolated.outputs.network_id`)
	val, diags := expr.Value(ctx)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.True(t, val.IsNull())
}

func TestEvalContext_UnrecordedNodeFailsEvaluation(t *testing.T) {
	ctx := EvalContext(map[string]cty.Value{}, outputs.NewSet())

	expr := parseExpr(t, `resource.network.isolated.outputs.network_id`)
	_, diags := expr.Value(ctx)
	assert.True(t, diags.HasErrors())
}

func TestEvalContext_Functions(t *testing.T) {
	ctx := EvalContext(map[string]cty.Value{
		"case_id": cty.StringVal("case-0142"),
	}, outputs.NewSet())

	expr := parseExpr(t, `upper(var.case_id)`)
	val, diags := expr.Value(ctx)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "CASE-0142", val.AsString())
}

func TestErrorStrings(t *testing.T) {
	unknownNode := &UnknownNodeError{Node: "network.isolated", Consumer: "vm.analysis"}
	assert.Contains(t, unknownNode.Error(), "unknown resource network.isolated")

	unknownOutput := &UnknownOutputError{Node: "network.isolated", Output: "vlan", Consumer: "vm.analysis"}
	assert.Contains(t, unknownOutput.Error(), `"vlan"`)
	assert.Contains(t, unknownOutput.Error(), "does not declare")

	unresolved := &UnresolvedReferenceError{Node: "network.isolated", Output: "network_id", Consumer: "vm.analysis"}
	assert.Contains(t, unresolved.Error(), "before it was satisfied")
}
