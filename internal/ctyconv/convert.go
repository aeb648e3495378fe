// Package ctyconv converts between native Go values, JSON documents and the
// cty values the expression engine works with.
package ctyconv

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Null is the canonical null used for unset field values.
var Null = cty.NullVal(cty.DynamicPseudoType)

// Normalize replaces the zero cty.Value with Null so callers never have to
// special-case cty.NilVal.
func Normalize(v cty.Value) cty.Value {
	if v.Type() == cty.NilType {
		return Null
	}
	return v
}

// FromNative converts a JSON-shaped Go value into a cty.Value. Maps become
// objects and slices become tuples so heterogeneous content is preserved.
func FromNative(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return Null, nil
	case cty.Value:
		return Normalize(t), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case json.Number:
		bf, _, err := big.ParseFloat(string(t), 10, 512, big.ToNearestEven)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid number %q: %w", string(t), err)
		}
		return cty.NumberVal(bf), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			ev, err := FromNative(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in element %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return FromNative(items)
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			ev, err := FromNative(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in attribute '%s': %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	case map[string]string:
		attrs := make(map[string]any, len(t))
		for k, s := range t {
			attrs[k] = s
		}
		return FromNative(attrs)
	default:
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("unable to infer cty.Type for %T: %w", v, err)
		}
		return gocty.ToCtyValue(v, ty)
	}
}

// ToNative recursively converts a cty.Value to its most natural Go
// counterpart. Unknown values become nil.
func ToNative(v cty.Value) (any, error) {
	v = Normalize(v)
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			nv, err := ToNative(ev)
			if err != nil {
				return nil, err
			}
			slice = append(slice, nv)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			nv, err := ToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			m[k.AsString()] = nv
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported cty type for native conversion: %s", ty.FriendlyName())
	}
}

// ParseJSON decodes a JSON document into a cty.Value using the implied type
// of the document.
func ParseJSON(data []byte) (cty.Value, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return Null, nil
	}
	ty, err := ctyjson.ImpliedType([]byte(trimmed))
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid JSON: %w", err)
	}
	v, err := ctyjson.Unmarshal([]byte(trimmed), ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

// MarshalJSON encodes a value as plain JSON. Values go through ToNative
// because ctyjson wraps dynamically typed attributes (such as null fields)
// in a type envelope.
func MarshalJSON(v cty.Value) ([]byte, error) {
	native, err := ToNative(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(native)
}

// Same reports whether two values are equal for change-detection purposes.
// Nulls of any type are equal to each other; unknown values never are.
func Same(a, b cty.Value) bool {
	a, b = Normalize(a), Normalize(b)
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if !a.IsWhollyKnown() || !b.IsWhollyKnown() {
		return false
	}
	if !a.Type().Equals(b.Type()) {
		return false
	}
	eq := a.Equals(b)
	return eq.IsKnown() && eq.True()
}

// Path looks up a dotted path ("a.b.0.c") inside an object, map, list or
// tuple value. ok is false when any segment is missing.
func Path(v cty.Value, path string) (cty.Value, bool) {
	v = Normalize(v)
	if path == "" {
		return v, true
	}
	for _, seg := range strings.Split(path, ".") {
		if v.IsNull() || !v.IsKnown() {
			return Null, false
		}
		ty := v.Type()
		switch {
		case ty.IsObjectType():
			if !ty.HasAttribute(seg) {
				return Null, false
			}
			v = v.GetAttr(seg)
		case ty.IsMapType():
			key := cty.StringVal(seg)
			if !v.HasIndex(key).True() {
				return Null, false
			}
			v = v.Index(key)
		case ty.IsListType() || ty.IsTupleType():
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= v.LengthInt() {
				return Null, false
			}
			v = v.Index(cty.NumberIntVal(int64(idx)))
		default:
			return Null, false
		}
	}
	return v, true
}

// Attributes returns the attribute names of an object or map value in
// sorted order, or nil for other kinds.
func Attributes(v cty.Value) []string {
	v = Normalize(v)
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil
	}
	var names []string
	for it := v.ElementIterator(); it.Next(); {
		k, _ := it.Element()
		names = append(names, k.AsString())
	}
	sort.Strings(names)
	return names
}
