package outputs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestSet_RecordAndGet(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.Record("vm.analysis", map[string]cty.Value{
		"instance_id": cty.StringVal("i-1234"),
		"private_ip":  cty.StringVal("10.40.0.4"),
	}))

	val, ok := set.Get("vm.analysis", "instance_id")
	require.True(t, ok)
	assert.False(t, val.Absent)
	assert.Equal(t, "i-1234", val.Val.AsString())

	_, ok = set.Get("vm.analysis", "nope")
	assert.False(t, ok)
	_, ok = set.Get("vm.other", "instance_id")
	assert.False(t, ok)
}

func TestSet_RecordTwice(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.Record("vm.analysis", nil))
	assert.Error(t, set.Record("vm.analysis", nil))
	assert.Error(t, set.MarkAbsent("vm.analysis", []string{"x"}))
}

func TestSet_MarkAbsent(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.MarkAbsent("network.isolated", []string{"network_id", "subnet_id"}))

	assert.True(t, set.Recorded("network.isolated"))

	val, ok := set.Get("network.isolated", "network_id")
	require.True(t, ok)
	assert.True(t, val.Absent)
	assert.True(t, val.Val.IsNull())
}

func TestSet_Recorded(t *testing.T) {
	set := NewSet()
	assert.False(t, set.Recorded("vm.analysis"))

	require.NoError(t, set.Record("vm.analysis", map[string]cty.Value{}))
	assert.True(t, set.Recorded("vm.analysis"))
}

func TestSet_Node_ReturnsCopy(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.Record("vm.analysis", map[string]cty.Value{
		"instance_id": cty.StringVal("i-1234"),
	}))

	entry, ok := set.Node("vm.analysis")
	require.True(t, ok)
	entry["instance_id"] = AbsentValue()

	val, _ := set.Get("vm.analysis", "instance_id")
	assert.False(t, val.Absent)

	_, ok = set.Node("vm.missing")
	assert.False(t, ok)
}

func TestSet_Snapshot(t *testing.T) {
	set := NewSet()
	require.NoError(t, set.Record("vm.analysis", map[string]cty.Value{
		"instance_id": cty.StringVal("i-1234"),
	}))
	require.NoError(t, set.MarkAbsent("network.isolated", []string{"network_id"}))

	snap := set.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "i-1234", snap["vm.analysis"]["instance_id"].Val.AsString())
	assert.True(t, snap["network.isolated"]["network_id"].Absent)
}

func TestSet_ConcurrentWriters(t *testing.T) {
	set := NewSet()

	var wg sync.WaitGroup
	ids := []string{"vm.a", "vm.b", "vm.c", "vm.d", "vm.e", "vm.f", "vm.g", "vm.h"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = set.Record(id, map[string]cty.Value{"out": cty.StringVal(id)})
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		val, ok := set.Get(id, "out")
		require.True(t, ok, id)
		assert.Equal(t, id, val.Val.AsString())
	}
}
