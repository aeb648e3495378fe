// This file contains the logic for translating HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
)

// translateForm applies form-wide settings onto the model.
func (l *Loader) translateForm(ctx context.Context, b *FormBlock, m *config.Model) {
	logger := ctxlog.FromContext(ctx).With("form", b.Name)
	logger.Debug("Translating HCL form block.")

	m.Name = b.Name
	m.Locale = b.Locale
	if b.SecurityResponsePrefix != nil {
		m.SecurityResponsePrefix = *b.SecurityResponsePrefix
	}
	if b.URLStateParam != nil && *b.URLStateParam != "" {
		m.URLParam = *b.URLStateParam
	}
	if b.BotTokenHeader != nil && *b.BotTokenHeader != "" {
		m.BotTokenHeader = *b.BotTokenHeader
	}
	for k, v := range b.TagHeaders {
		m.TagHeaders[k] = v
	}
}

// translateField converts the HCL-specific field schema into the agnostic model.
func (l *Loader) translateField(ctx context.Context, b *FieldBlock) (*config.Field, error) {
	logger := ctxlog.FromContext(ctx).With("field", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	f := &config.Field{
		Name:                  b.Name,
		ShowIf:                b.ShowIf,
		DynamicExtend:         b.DynamicExtend,
		Transformer:           b.Transformer,
		ValuePersistence:      config.Persistence(b.ValuePersistence),
		Target:                b.Target,
		DataMapping:           b.DataMapping,
		DataMappingExpression: b.DataMappingExpression,
		Options:               len(b.Options),
	}
	if b.DependsOn != nil {
		f.DependsOn = append([]string{}, *b.DependsOn...)
	}

	val, ok, err := literalValue(ctx, b.Default, "default")
	if err != nil {
		return nil, fmt.Errorf("invalid default value for field '%s': %w", b.Name, err)
	}
	if ok {
		f.Default = val
	}

	val, ok, err = literalValue(ctx, b.Properties, "properties")
	if err != nil {
		return nil, fmt.Errorf("invalid properties for field '%s': %w", b.Name, err)
	}
	if ok {
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return nil, fmt.Errorf("properties for field '%s' must be an object, got %s", b.Name, val.Type().FriendlyName())
		}
		f.Properties = val.AsValueMap()
	}

	logger.Debug("Translated field.", "has_default", f.HasDefault(), "show_if", f.ShowIf != "", "dynamic_extend", len(f.DynamicExtend))
	return f, nil
}

// translateTarget converts a request target block.
func (l *Loader) translateTarget(ctx context.Context, b *TargetBlock, kind string) (*config.Target, error) {
	t := &config.Target{
		URL:         b.URL,
		Method:      b.Method,
		Headers:     b.Headers,
		Mode:        b.Mode,
		Credentials: b.Credentials,
	}
	val, ok, err := literalValue(ctx, b.Body, "body")
	if err != nil {
		return nil, fmt.Errorf("invalid body for %s: %w", kind, err)
	}
	if ok {
		t.Body = val
	}
	return t, nil
}

// translateMask reduces the allow and deny trees to field names.
func translateMask(ctx context.Context, b *MaskBlock) (config.Mask, error) {
	var mask config.Mask
	for _, part := range []struct {
		attr string
		expr hcl.Expression
		dst  *[]string
	}{
		{"allow", b.Allow, &mask.Allow},
		{"deny", b.Deny, &mask.Deny},
	} {
		val, ok, err := literalValue(ctx, part.expr, part.attr)
		if err != nil {
			return config.Mask{}, fmt.Errorf("invalid url_model_mask %s: %w", part.attr, err)
		}
		if !ok {
			continue
		}
		names, err := maskNames(val)
		if err != nil {
			return config.Mask{}, fmt.Errorf("invalid url_model_mask %s: %w", part.attr, err)
		}
		*part.dst = names
	}
	return mask, nil
}

// maskNames accepts a list of names, or an object keyed by field name where
// a true or object value selects the field. A top-level "model" key is
// descended into.
func maskNames(v cty.Value) ([]string, error) {
	ty := v.Type()
	switch {
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		names := make([]string, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, el := it.Element()
			if el.IsNull() || el.Type() != cty.String {
				return nil, fmt.Errorf("mask list entries must be strings, got %s", el.Type().FriendlyName())
			}
			names = append(names, el.AsString())
		}
		return names, nil
	case ty.IsObjectType() || ty.IsMapType():
		m := v.AsValueMap()
		if model, ok := m["model"]; ok && len(m) == 1 && !model.IsNull() && (model.Type().IsObjectType() || model.Type().IsMapType()) {
			return maskNames(model)
		}
		var names []string
		for it := v.ElementIterator(); it.Next(); {
			k, el := it.Element()
			if el.IsNull() {
				continue
			}
			switch {
			case el.Type() == cty.Bool:
				if el.True() {
					names = append(names, k.AsString())
				}
			case el.Type().IsObjectType() || el.Type().IsMapType():
				names = append(names, k.AsString())
			default:
				return nil, fmt.Errorf("mask entry %q must be a bool or an object, got %s", k.AsString(), el.Type().FriendlyName())
			}
		}
		return names, nil
	}
	return nil, fmt.Errorf("mask must be a list of names or an object, got %s", ty.FriendlyName())
}

func translateExpression(b *ExpressionBlock) *config.Expression {
	return &config.Expression{Name: b.Name, Source: b.Source}
}

func translateConstraint(b *ConstraintBlock) *config.Constraint {
	return &config.Constraint{Description: b.Description, Evaluation: b.Evaluation}
}

func translateAction(b *ActionBlock) *config.Action {
	return &config.Action{Name: b.Name, Code: b.Code, Target: b.Target}
}

func translateGroup(b *GroupBlock) *config.Group {
	return &config.Group{Name: b.Name, Children: b.Children, ShowIf: b.ShowIf}
}

// translateMessages overrides only the texts that are set.
func translateMessages(b *MessagesBlock, m *config.Messages) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&m.Invalid, b.Invalid)
	set(&m.Generic, b.Generic)
	set(&m.InvalidContact, b.InvalidContact)
	set(&m.Unauthenticated, b.Unauthenticated)
	set(&m.BotCheck, b.BotCheck)
	set(&m.Stale, b.Stale)
}
