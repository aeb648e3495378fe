package form

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/registry"
	"github.com/vk/jform/internal/scope"
)

// Collected is the outcome of reading the form for submission.
type Collected struct {
	// Payload maps outbound keys to values.
	Payload map[string]cty.Value
	// Invalid lists the shown fields whose host input reports invalid.
	Invalid []string
}

// Value returns the payload as a single object value.
func (c Collected) Value() cty.Value {
	if len(c.Payload) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(c.Payload)
}

// Collect reads every stored field: the transformer is applied, the value is
// renamed to its target and composite values are reshaped by data mapping.
// Shown inputs are marked invalid or cleared according to host validity.
func (c *Controller) Collect(ctx context.Context) Collected {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	out := Collected{Payload: make(map[string]cty.Value)}
	sc := c.fullScope(ctx)

	for _, f := range c.registry.Fields() {
		if f.Computed {
			continue
		}
		in := c.inputs[f.Name]
		if f.IsShown() && in.Invalid() {
			in.SetInvalid(true)
			out.Invalid = append(out.Invalid, f.Name)
		} else {
			in.SetInvalid(false)
		}

		v := c.transform(ctx, f, sc, ctyconv.Normalize(f.Value))
		c.mapData(ctx, f, sc, v, out.Payload)
	}

	logger.Debug("Form collected.", "keys", len(out.Payload), "invalid", len(out.Invalid))
	return out
}

// transform applies the field transformer; on failure the original value is
// kept.
func (c *Controller) transform(ctx context.Context, f *registry.Field, sc scope.Scope, v cty.Value) cty.Value {
	if f.Transformer == nil {
		return v
	}
	args := sc.With(valueName, v)
	out, err := f.Transformer.Call(args.Values...)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Transformer failed; sending original value.", "field", f.Name, "error", err)
		return v
	}
	return ctyconv.Normalize(out)
}

// mapData writes v into payload, either under the outbound name or spread
// over several keys by the field's data mapping.
func (c *Controller) mapData(ctx context.Context, f *registry.Field, sc scope.Scope, v cty.Value, payload map[string]cty.Value) {
	switch {
	case len(f.DataMapping) > 0:
		for outKey, path := range f.DataMapping {
			pv, ok := ctyconv.Path(v, path)
			if !ok {
				pv = ctyconv.Null
			}
			payload[outKey] = pv
		}
		return
	case f.DataMapper != nil:
		mapped, err := f.DataMapper.Call(sc.With(valueName, v).Values...)
		if err == nil {
			mapped = ctyconv.Normalize(mapped)
			ty := mapped.Type()
			if !mapped.IsNull() && mapped.IsKnown() && (ty.IsObjectType() || ty.IsMapType()) {
				for key, pv := range mapped.AsValueMap() {
					payload[key] = pv
				}
				return
			}
			ctxlog.FromContext(ctx).Debug("Data mapping did not yield an object; sending value as is.", "field", f.Name, "type", ty.FriendlyName())
		} else {
			ctxlog.FromContext(ctx).Debug("Data mapping failed; sending value as is.", "field", f.Name, "error", err)
		}
	}
	payload[f.OutboundName()] = v
}
