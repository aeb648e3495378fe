package expr

import (
	"fmt"
	"regexp"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Functions returns the whitelist of functions callable from expressions.
// A fresh map is returned on every call.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":     stdlib.UpperFunc,
		"lower":     stdlib.LowerFunc,
		"length":    stdlib.LengthFunc,
		"strlen":    stdlib.StrlenFunc,
		"substr":    stdlib.SubstrFunc,
		"join":      stdlib.JoinFunc,
		"split":     stdlib.SplitFunc,
		"concat":    stdlib.ConcatFunc,
		"contains":  stdlib.ContainsFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"min":       stdlib.MinFunc,
		"max":       stdlib.MaxFunc,
		"abs":       stdlib.AbsoluteFunc,
		"floor":     stdlib.FloorFunc,
		"ceil":      stdlib.CeilFunc,
		"format":    stdlib.FormatFunc,
		"regex":     stdlib.RegexFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"replace":   stdlib.ReplaceFunc,
		"lookup":    stdlib.LookupFunc,
		"keys":      stdlib.KeysFunc,
		"isempty":   isEmptyFunc,
		"isemail":   isEmailFunc,
		"matches":   matchesFunc,
		"tonumber":  toNumberFunc,
		"tostring":  toStringFunc,
	}
}

var isEmptyFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "value",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	}},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.BoolVal(isEmpty(args[0])), nil
	},
})

var isEmailFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:      "value",
		Type:      cty.String,
		AllowNull: true,
	}},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() {
			return cty.False, nil
		}
		return cty.BoolVal(emailPattern.MatchString(args[0].AsString())), nil
	},
})

var matchesFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.String, AllowNull: true},
		{Name: "pattern", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() {
			return cty.False, nil
		}
		re, err := regexp.Compile(args[1].AsString())
		if err != nil {
			return cty.NilVal, function.NewArgErrorf(1, "invalid pattern: %s", err)
		}
		return cty.BoolVal(re.MatchString(args[0].AsString())), nil
	},
})

var toNumberFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "value",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	}},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() {
			return cty.NullVal(cty.Number), nil
		}
		v, err := convert.Convert(args[0], cty.Number)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot convert %s to number", args[0].Type().FriendlyName())
		}
		return v, nil
	},
})

var toStringFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "value",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	}},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() {
			return cty.StringVal(""), nil
		}
		v, err := convert.Convert(args[0], cty.String)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot convert %s to string", args[0].Type().FriendlyName())
		}
		return v, nil
	},
})

func isEmpty(v cty.Value) bool {
	if v.Type() == cty.NilType || v.IsNull() || !v.IsKnown() {
		return true
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString() == ""
	case ty.IsObjectType():
		return len(ty.AttributeTypes()) == 0
	case ty.IsCollectionType() || ty.IsTupleType():
		return v.LengthInt() == 0
	}
	return false
}

// Truthy applies the form engine's truthiness rules: null, unknown, false,
// the empty string, "false" and zero are falsey; everything else is truthy.
func Truthy(v cty.Value) bool {
	if v.Type() == cty.NilType || v.IsNull() || !v.IsKnown() {
		return false
	}
	switch v.Type() {
	case cty.Bool:
		return v.True()
	case cty.String:
		s := v.AsString()
		return s != "" && s != "false"
	case cty.Number:
		return v.AsBigFloat().Sign() != 0
	}
	return true
}
