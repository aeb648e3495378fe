package config

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Defaults applied by New.
const (
	DefaultURLParam               = "jForm"
	DefaultSecurityResponsePrefix = ")]}',"
	DefaultBotTokenHeader         = "X-Recaptcha-Token"
)

// Persistence controls what happens to a field's value when it is hidden.
type Persistence string

const (
	// PersistenceUnset resets the value to null on hide.
	PersistenceUnset Persistence = ""
	// Persistent keeps the value while hidden.
	Persistent Persistence = "persistent"
	// ResetOnHide resets the value to the field default on hide.
	ResetOnHide Persistence = "resetOnHide"
)

// Model is the unified, format-agnostic representation of a form.
type Model struct {
	Name   string
	Locale string

	Fields      []*Field
	Expressions []*Expression
	Constraints []*Constraint
	Actions     []*Action
	Groups      []*Group

	Target           *Target
	InitializeTarget *Target

	URLModelMask           Mask
	URLParam               string
	SecurityResponsePrefix string
	ResponseWrapper        ResponseWrapper
	BotTokenHeader         string
	TagHeaders             map[string]string
	Messages               Messages
}

// Field is the configured seed for one named input.
type Field struct {
	Name string
	// Default is cty.NilVal when no default is configured.
	Default cty.Value
	// DependsOn is nil when not declared; the registry then fills in every
	// known field name.
	DependsOn             []string
	ShowIf                string
	DynamicExtend         map[string]string
	Transformer           string
	ValuePersistence      Persistence
	Target                string
	DataMapping           map[string]string
	DataMappingExpression string
	Options               int
	Properties            map[string]cty.Value
}

// HasDefault reports whether a default value was configured.
func (f *Field) HasDefault() bool {
	return f.Default.Type() != cty.NilType
}

// Expression is a named generic evaluation.
type Expression struct {
	Name   string
	Source string
}

// Constraint is a submit-time check; Description is shown when it fails.
type Constraint struct {
	Description string
	Evaluation  string
}

// Action is a post-submit navigation rule. Code is an indicator expression,
// or the literal "fallback".
type Action struct {
	Name   string
	Code   string
	Target string
}

// Group is a visual container of fields and other groups.
type Group struct {
	Name     string
	Children []string
	ShowIf   string
}

// Target describes an outbound request.
type Target struct {
	URL         string
	Method      string
	Headers     map[string]string
	Body        cty.Value
	Mode        string
	Credentials string
}

// Tree converts the target to the nested {url, options{...}} shape used for
// deep merging. Unset members are omitted.
func (t *Target) Tree() map[string]any {
	if t == nil {
		return map[string]any{}
	}
	options := map[string]any{}
	if t.Method != "" {
		options["method"] = t.Method
	}
	if len(t.Headers) > 0 {
		headers := make(map[string]any, len(t.Headers))
		for k, v := range t.Headers {
			headers[k] = v
		}
		options["headers"] = headers
	}
	if t.Body.Type() != cty.NilType && !t.Body.IsNull() {
		options["body"] = t.Body
	}
	if t.Mode != "" {
		options["mode"] = t.Mode
	}
	if t.Credentials != "" {
		options["credentials"] = t.Credentials
	}
	tree := map[string]any{"options": options}
	if t.URL != "" {
		tree["url"] = t.URL
	}
	return tree
}

// Mask selects which fields may be read from or written to the URL state.
// An empty Allow list allows every field; Deny always wins.
type Mask struct {
	Allow []string
	Deny  []string
}

// ResponseWrapper locates the logical payload inside a response body.
type ResponseWrapper struct {
	Path     string
	Optional bool
}

// Messages are the user-facing texts produced by the submission pipeline.
type Messages struct {
	Invalid         string
	Generic         string
	InvalidContact  string
	Unauthenticated string
	BotCheck        string
	Stale           string
}

// DefaultMessages returns the built-in user-facing texts.
func DefaultMessages() Messages {
	return Messages{
		Invalid:         "Please check the highlighted fields.",
		Generic:         "Something went wrong. Please try again.",
		InvalidContact:  "Please check your contact details and try again.",
		Unauthenticated: "Your session has expired. Please sign in and try again.",
		BotCheck:        "We could not verify that you are human. Please try again.",
		Stale:           "This form is out of date. Please reload the page and try again.",
	}
}

// New returns an empty model with defaults applied.
func New() *Model {
	return &Model{
		URLParam:               DefaultURLParam,
		SecurityResponsePrefix: DefaultSecurityResponsePrefix,
		BotTokenHeader:         DefaultBotTokenHeader,
		TagHeaders:             map[string]string{},
		Messages:               DefaultMessages(),
	}
}

// Prototyping reports whether no field model is configured. Inputs are then
// bound through passthrough entries.
func (m *Model) Prototyping() bool {
	return len(m.Fields) == 0
}

// Field returns the configured field with the given name.
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Action returns the configured action with the given name.
func (m *Model) Action(name string) (*Action, bool) {
	for _, a := range m.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Validate checks structural invariants that the loaders can not express.
func (m *Model) Validate() error {
	var errs []error

	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field with empty name"))
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate field %q", f.Name))
		}
		seen[f.Name] = struct{}{}
		switch f.ValuePersistence {
		case PersistenceUnset, Persistent, ResetOnHide:
		default:
			errs = append(errs, fmt.Errorf("field %q: unknown value_persistence %q", f.Name, f.ValuePersistence))
		}
		if len(f.DataMapping) > 0 && f.DataMappingExpression != "" {
			errs = append(errs, fmt.Errorf("field %q: data_mapping and data_mapping_expression are mutually exclusive", f.Name))
		}
	}

	exprNames := make(map[string]struct{}, len(m.Expressions))
	for _, e := range m.Expressions {
		if _, dup := exprNames[e.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate expression %q", e.Name))
		}
		exprNames[e.Name] = struct{}{}
	}

	for i, c := range m.Constraints {
		if c.Evaluation == "" {
			errs = append(errs, fmt.Errorf("constraint %d has no evaluation", i))
		}
	}

	actions := make(map[string]struct{}, len(m.Actions))
	for _, a := range m.Actions {
		if _, dup := actions[a.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate action %q", a.Name))
		}
		actions[a.Name] = struct{}{}
	}

	return errors.Join(errs...)
}
