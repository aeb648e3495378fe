package form

import (
	"encoding/json"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctyconv"
)

// FieldState is a snapshot of one field.
type FieldState struct {
	Name       string
	Value      cty.Value
	Default    cty.Value
	Shown      bool
	Visibility string
	Computed   bool
	Options    int
	Properties map[string]cty.Value
}

// State is a point-in-time snapshot of the whole form.
type State struct {
	Form        string
	Fields      []FieldState
	Groups      []GroupState
	Evaluations map[string]cty.Value
}

// State returns a snapshot of every field, group and generic evaluation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Form:        c.model.Name,
		Groups:      c.groupStates(),
		Evaluations: make(map[string]cty.Value, len(c.evalNames)),
	}
	for i, name := range c.evalNames {
		if i < len(c.evalResults) {
			s.Evaluations[name] = c.evalResults[i]
		}
	}
	for _, f := range c.registry.Fields() {
		props := make(map[string]cty.Value, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		s.Fields = append(s.Fields, FieldState{
			Name:       f.Name,
			Value:      ctyconv.Normalize(f.Value),
			Default:    f.DefaultOrNull(),
			Shown:      f.IsShown(),
			Visibility: f.Shown.String(),
			Computed:   f.Computed,
			Options:    f.Options,
			Properties: props,
		})
	}
	return s
}

// Field returns the snapshot of one field.
func (s State) Field(name string) (FieldState, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldState{}, false
}

// Values returns the current value of every field by name.
func (s State) Values() map[string]cty.Value {
	out := make(map[string]cty.Value, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Value
	}
	return out
}

type fieldJSON struct {
	Name       string         `json:"name"`
	Value      any            `json:"value"`
	Shown      bool           `json:"shown"`
	Computed   bool           `json:"computed,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type stateJSON struct {
	Form        string         `json:"form"`
	Fields      []fieldJSON    `json:"fields"`
	Groups      []GroupState   `json:"groups"`
	Evaluations map[string]any `json:"evaluations,omitempty"`
}

// MarshalJSON renders the snapshot with plain JSON values.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Form: s.Form, Fields: []fieldJSON{}, Groups: s.Groups}
	if out.Groups == nil {
		out.Groups = []GroupState{}
	}
	for _, f := range s.Fields {
		v, err := ctyconv.ToNative(f.Value)
		if err != nil {
			return nil, err
		}
		fj := fieldJSON{Name: f.Name, Value: v, Shown: f.Shown, Computed: f.Computed}
		if len(f.Properties) > 0 {
			fj.Properties = make(map[string]any, len(f.Properties))
			for k, prop := range f.Properties {
				pv, err := ctyconv.ToNative(prop)
				if err != nil {
					return nil, err
				}
				fj.Properties[k] = pv
			}
		}
		out.Fields = append(out.Fields, fj)
	}
	if len(s.Evaluations) > 0 {
		out.Evaluations = make(map[string]any, len(s.Evaluations))
		for k, v := range s.Evaluations {
			nv, err := ctyconv.ToNative(v)
			if err != nil {
				return nil, err
			}
			out.Evaluations[k] = nv
		}
	}
	return json.Marshal(out)
}
