package form

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/expr"
	"github.com/vk/jform/internal/registry"
	"github.com/vk/jform/internal/scope"
)

// cascade updates name and, when it changed (or force is set), visits every
// dependent depth-first. Each dependent completes its own cascade before the
// next sibling starts.
func (c *Controller) cascade(ctx context.Context, name string, depth int, force bool) error {
	f, ok := c.registry.Get(name)
	if !ok {
		return nil
	}
	changed := c.update(ctx, f)
	if !changed && !force {
		return nil
	}
	if changed {
		c.inputs[name].ToggleChangeTrigger()
	}

	dependents := c.graph.Dependents(name)
	if len(dependents) == 0 {
		return nil
	}
	if depth >= c.maxDepth {
		ctxlog.FromContext(ctx).Warn("Cascade depth limit reached; not visiting dependents.", "field", name, "depth", depth)
		return nil
	}
	if err := c.tick.Tick(ctx); err != nil {
		return err
	}
	for _, dep := range dependents {
		if err := c.cascade(ctx, dep, depth+1, false); err != nil {
			return err
		}
	}
	return nil
}

// update recomputes the dynamic-extend properties and the visibility of f.
// It reports whether anything changed.
func (c *Controller) update(ctx context.Context, f *registry.Field) bool {
	logger := ctxlog.FromContext(ctx)
	in := c.inputs[f.Name]
	changed := false

	var sc scope.Scope
	if len(f.DynamicExtend) > 0 || f.ShowIf != nil {
		sc = c.fieldScope(ctx, f)
	}
	if c.evalReaders[f.Name] {
		c.evalSeen[f.Name] = c.evalVersion
	}

	for _, key := range f.ExtendKeys() {
		compiled, ok := f.DynamicExtend[key]
		if !ok {
			continue
		}
		v, err := compiled.Call(sc.Values...)
		if err != nil {
			logger.Debug("Dynamic extend failed; keeping current value.", "field", f.Name, "property", key, "error", err)
			continue
		}
		v = ctyconv.Normalize(v)

		if key == registry.ValueProperty {
			if !ctyconv.Same(f.Value, v) {
				f.Value = v
				in.SetValue(v)
				c.markEvaluationsDirty()
				changed = true
			}
			continue
		}
		p := registry.MapProperty(key)
		nv := p.Apply(v)
		if !ctyconv.Same(f.Properties[p.Target], nv) {
			f.Properties[p.Target] = nv
			in.SetProperty(p.Target, nv)
			changed = true
		}
	}

	if vis := registry.VisibilityOf(c.shown(ctx, f, sc.Values)); vis != f.Shown {
		if vis == registry.Hidden {
			c.resetOnHide(f)
		}
		f.Shown = vis
		in.SetShown(vis == registry.Visible)
		changed = true
	}
	return changed
}

// shown evaluates the show_if predicate. A missing expression means shown; a
// predicate that failed to compile or evaluate means hidden.
func (c *Controller) shown(ctx context.Context, f *registry.Field, args []cty.Value) bool {
	if f.ShowIfExpression == "" {
		return true
	}
	if f.ShowIf == nil {
		return false
	}
	v, err := f.ShowIf.Call(args...)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("show_if failed; hiding field.", "field", f.Name, "error", err)
		return false
	}
	return expr.Truthy(v)
}

// resetOnHide clears the value of a field that is about to be hidden, unless
// it is persistent.
func (c *Controller) resetOnHide(f *registry.Field) {
	switch f.ValuePersistence {
	case config.Persistent:
		return
	case config.ResetOnHide:
		c.registry.ResetToDefault(f.Name)
	default:
		c.registry.ResetToNull(f.Name)
	}
	c.inputs[f.Name].SetValue(f.Value)
	c.markEvaluationsDirty()
}
