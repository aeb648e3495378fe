package ctyconv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestFromNativeToNative(t *testing.T) {
	in := map[string]any{
		"name":   "Ada",
		"age":    int64(36),
		"ratio":  0.5,
		"active": true,
		"tags":   []any{"a", int64(1)},
		"nested": map[string]any{"city": "London"},
		"none":   nil,
	}

	val, err := FromNative(in)
	require.NoError(t, err)
	assert.True(t, val.Type().IsObjectType())

	out, err := ToNative(val)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJSON(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		v, err := ParseJSON([]byte(`{"success": true, "data": {"id": 7}}`))
		require.NoError(t, err)
		got, ok := Path(v, "data.id")
		require.True(t, ok)
		assert.True(t, Same(cty.NumberIntVal(7), got))
	})

	t.Run("null and empty", func(t *testing.T) {
		v, err := ParseJSON([]byte(" null "))
		require.NoError(t, err)
		assert.True(t, v.IsNull())

		v, err = ParseJSON(nil)
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"a":`))
		assert.ErrorContains(t, err, "invalid JSON")
	})
}

func TestMarshalJSON(t *testing.T) {
	v := cty.ObjectVal(map[string]cty.Value{
		"a": cty.NumberIntVal(1),
		"b": Null,
		"c": cty.StringVal("x"),
	})
	b, err := MarshalJSON(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":null,"c":"x"}`, string(b))
}

func TestSame(t *testing.T) {
	assert.True(t, Same(Null, cty.NullVal(cty.String)))
	assert.True(t, Same(cty.NilVal, Null))
	assert.False(t, Same(Null, cty.False))
	assert.True(t, Same(cty.NumberIntVal(2), cty.NumberFloatVal(2)))
	assert.False(t, Same(cty.StringVal("1"), cty.NumberIntVal(1)))
	assert.False(t, Same(cty.UnknownVal(cty.String), cty.UnknownVal(cty.String)))
}

func TestPath(t *testing.T) {
	v := cty.ObjectVal(map[string]cty.Value{
		"items": cty.TupleVal([]cty.Value{cty.StringVal("first")}),
		"meta":  cty.MapVal(map[string]cty.Value{"k": cty.StringVal("v")}),
	})

	got, ok := Path(v, "items.0")
	require.True(t, ok)
	assert.Equal(t, "first", got.AsString())

	got, ok = Path(v, "meta.k")
	require.True(t, ok)
	assert.Equal(t, "v", got.AsString())

	_, ok = Path(v, "items.3")
	assert.False(t, ok)
	_, ok = Path(v, "missing.deep")
	assert.False(t, ok)

	assert.Equal(t, []string{"items", "meta"}, Attributes(v))
}
