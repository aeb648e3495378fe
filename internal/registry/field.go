package registry

import (
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/expr"
)

// Visibility is the tri-state result of the last show_if evaluation.
type Visibility int8

const (
	VisibilityUnset Visibility = iota
	Visible
	Hidden
)

// String implements fmt.Stringer.
func (v Visibility) String() string {
	switch v {
	case Visible:
		return "shown"
	case Hidden:
		return "hidden"
	default:
		return "unset"
	}
}

// VisibilityOf converts a boolean into a Visibility.
func VisibilityOf(shown bool) Visibility {
	if shown {
		return Visible
	}
	return Hidden
}

// Binding is what a host input declares about itself when it is discovered.
type Binding struct {
	Name string
	// Value and Default are cty.NilVal when the input declares none.
	Value      cty.Value
	Default    cty.Value
	Options    int
	Properties map[string]cty.Value
}

// Field is the live record of one named input.
type Field struct {
	Name  string
	Order int

	Value   cty.Value
	Default cty.Value

	// DependsOn is nil until ResolveDependsOn runs.
	DependsOn []string

	ShowIfExpression string
	ShowIf           *expr.Compiled

	DynamicExtendExpressions map[string]string
	DynamicExtend            map[string]*expr.Compiled

	TransformerExpression string
	Transformer           *expr.Compiled

	Shown            Visibility
	ValuePersistence config.Persistence

	Target                string
	DataMapping           map[string]string
	DataMappingExpression string
	DataMapper            *expr.Compiled

	// Properties holds the current value of every mapped property, keyed by
	// target property name (disabled, readOnly, label, ...).
	Properties map[string]cty.Value

	// Computed fields are display-only projections whose name is their
	// expression. They never reach the payload or the URL state.
	Computed bool
	// Passthrough fields were synthesized in prototyping mode.
	Passthrough bool
	Options     int
}

// IsComputedName reports whether a discovered input name denotes a computed
// projection.
func IsComputedName(name string) bool {
	return strings.Contains(name, ".")
}

// HasDynamicBehaviour reports whether the field carries expressions that need
// a resolved DependsOn before the first evaluation.
func (f *Field) HasDynamicBehaviour() bool {
	return f.ShowIfExpression != "" || len(f.DynamicExtendExpressions) > 0
}

// ExtendKeys returns the dynamic-extend property names in a stable order.
func (f *Field) ExtendKeys() []string {
	return sortedKeys(f.DynamicExtendExpressions)
}

// IsShown reports whether the field is currently visible. A field whose
// visibility was never computed counts as shown.
func (f *Field) IsShown() bool {
	return f.Shown != Hidden
}

// OutboundName is the key the field's value is sent under.
func (f *Field) OutboundName() string {
	if f.Target != "" {
		return f.Target
	}
	return f.Name
}

// DefaultOrNull returns the default, or the canonical null when none is set.
func (f *Field) DefaultOrNull() cty.Value {
	return ctyconv.Normalize(f.Default)
}
