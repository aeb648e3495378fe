package registry

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/expr"
)

// ValueProperty is the dynamic-extend key that writes the field value itself.
const ValueProperty = "value"

// Property is where a logical dynamic-extend property lands on the host
// input, and whether its boolean meaning is inverted on the way.
type Property struct {
	Target string
	Invert bool
}

// propertyMapping is the closed table of renamed properties. Anything not
// listed is written under its own name.
var propertyMapping = map[string]Property{
	"enabled":  {Target: "disabled", Invert: true},
	"editable": {Target: "readOnly", Invert: true},
	"readonly": {Target: "readOnly"},
}

// MapProperty resolves a logical property name.
func MapProperty(logical string) Property {
	if p, ok := propertyMapping[logical]; ok {
		return p
	}
	return Property{Target: logical}
}

// Apply converts a computed value into the value stored under Target.
func (p Property) Apply(v cty.Value) cty.Value {
	if !p.Invert {
		return v
	}
	return cty.BoolVal(!expr.Truthy(v))
}
