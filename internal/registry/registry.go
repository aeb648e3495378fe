package registry

import (
	"context"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
)

// Registry maps field names to their live records, in discovery order.
type Registry struct {
	model  *config.Model
	fields map[string]*Field
	order  []string
}

// New creates an empty registry for the given configuration.
func New(model *config.Model) *Registry {
	if model == nil {
		model = config.New()
	}
	return &Registry{
		model:  model,
		fields: make(map[string]*Field),
	}
}

// Resolve returns the record for a discovered input, creating it on first
// discovery. ok is false when the input matches nothing: the form has a field
// model, the name is not in it and it is not a computed name.
func (r *Registry) Resolve(ctx context.Context, b Binding) (*Field, bool) {
	logger := ctxlog.FromContext(ctx).With("field", b.Name)

	if f, ok := r.fields[b.Name]; ok {
		return f, true
	}

	var f *Field
	switch seed, found := r.model.Field(b.Name); {
	case found:
		f = fromSeed(seed, b)
		logger.Debug("Resolved field from configuration.")
	case IsComputedName(b.Name):
		f = computed(b)
		logger.Debug("Synthesized computed field.")
	case r.model.Prototyping():
		f = passthrough(b)
		logger.Debug("Synthesized passthrough field.")
	default:
		logger.Debug("Input does not match any configured field.")
		return nil, false
	}

	f.Order = len(r.order)
	r.fields[f.Name] = f
	r.order = append(r.order, f.Name)
	return f, true
}

func fromSeed(seed *config.Field, b Binding) *Field {
	f := &Field{
		Name:                     seed.Name,
		Default:                  b.Default,
		ShowIfExpression:         seed.ShowIf,
		DynamicExtendExpressions: copyStrings(seed.DynamicExtend),
		TransformerExpression:    seed.Transformer,
		ValuePersistence:         seed.ValuePersistence,
		Target:                   seed.Target,
		DataMapping:              copyStrings(seed.DataMapping),
		DataMappingExpression:    seed.DataMappingExpression,
		Options:                  b.Options,
		Properties:               mergeProperties(b.Properties, seed.Properties),
	}
	if seed.DependsOn != nil {
		f.DependsOn = append([]string{}, seed.DependsOn...)
	}
	if seed.HasDefault() {
		f.Default = seed.Default
	}
	if seed.Options > 0 {
		f.Options = seed.Options
	}
	f.Value = initialValue(b.Value, f.Default)

	if IsComputedName(seed.Name) {
		f.Computed = true
		if _, ok := f.DynamicExtendExpressions[ValueProperty]; !ok {
			if f.DynamicExtendExpressions == nil {
				f.DynamicExtendExpressions = map[string]string{}
			}
			f.DynamicExtendExpressions[ValueProperty] = seed.Name
		}
	}
	return f
}

func computed(b Binding) *Field {
	return &Field{
		Name:                     b.Name,
		Value:                    ctyconv.Null,
		Default:                  cty.NilVal,
		DynamicExtendExpressions: map[string]string{ValueProperty: b.Name},
		Properties:               mergeProperties(b.Properties, nil),
		Computed:                 true,
	}
}

func passthrough(b Binding) *Field {
	return &Field{
		Name:        b.Name,
		Value:       initialValue(b.Value, b.Default),
		Default:     b.Default,
		DependsOn:   []string{},
		Properties:  mergeProperties(b.Properties, nil),
		Passthrough: true,
		Options:     b.Options,
	}
}

func initialValue(declared, def cty.Value) cty.Value {
	if declared.Type() != cty.NilType {
		return declared
	}
	return ctyconv.Normalize(def)
}

// ResolveDependsOn fills every unresolved DependsOn. Regular fields receive
// every known field name, themselves included; computed fields receive every
// other field name. The over-approximation is deliberate: expressions may
// read any field.
func (r *Registry) ResolveDependsOn(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, name := range r.order {
		f := r.fields[name]
		if f.DependsOn != nil {
			continue
		}
		deps := make([]string, 0, len(r.order))
		for _, other := range r.order {
			if f.Computed && other == f.Name {
				continue
			}
			deps = append(deps, other)
		}
		f.DependsOn = deps
		logger.Debug("Resolved dependsOn to all fields.", "field", name, "count", len(deps))
	}
}

// Get returns the record with the given name.
func (r *Registry) Get(name string) (*Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Value returns the current value of a field, or null when unknown.
func (r *Registry) Value(name string) cty.Value {
	if f, ok := r.fields[name]; ok {
		return ctyconv.Normalize(f.Value)
	}
	return ctyconv.Null
}

// Shown returns the last computed visibility of a field.
func (r *Registry) Shown(name string) Visibility {
	if f, ok := r.fields[name]; ok {
		return f.Shown
	}
	return VisibilityUnset
}

// ResetToDefault sets the field value back to its default (null when none).
func (r *Registry) ResetToDefault(name string) (*Field, bool) {
	f, ok := r.fields[name]
	if !ok {
		return nil, false
	}
	f.Value = f.DefaultOrNull()
	return f, true
}

// ResetToNull clears the field value.
func (r *Registry) ResetToNull(name string) (*Field, bool) {
	f, ok := r.fields[name]
	if !ok {
		return nil, false
	}
	f.Value = ctyconv.Null
	return f, true
}

// Names returns every field name in discovery order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Fields returns every record in discovery order.
func (r *Registry) Fields() []*Field {
	out := make([]*Field, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.fields[name])
	}
	return out
}

// Len returns the number of known fields.
func (r *Registry) Len() int {
	return len(r.order)
}

// Model returns the configuration the registry resolves against.
func (r *Registry) Model() *config.Model {
	return r.model
}

func mergeProperties(declared, configured map[string]cty.Value) map[string]cty.Value {
	out := make(map[string]cty.Value, len(declared)+len(configured))
	for k, v := range declared {
		out[k] = v
	}
	for k, v := range configured {
		out[k] = v
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
