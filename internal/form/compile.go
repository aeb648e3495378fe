package form

import (
	"context"
	"slices"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/expr"
	"github.com/vk/jform/internal/registry"
	"github.com/vk/jform/internal/scope"
)

// valueName is the trailing variable transformers and data mappers receive.
const valueName = "value"

// compile compiles source with names. A failure is logged and yields nil so
// the dependent behaviour degrades to its inert default.
func (c *Controller) compile(ctx context.Context, what, source string, names []string) *expr.Compiled {
	if source == "" {
		return nil
	}
	compiled, err := c.compiler.Compile(source, names)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Expression failed to compile; behaviour disabled.", "expression", what, "error", err)
		return nil
	}
	return compiled
}

// compileEvaluations compiles each generic evaluation with the names of the
// evaluations before it, so evaluation N can never read evaluation N+1.
func (c *Controller) compileEvaluations(ctx context.Context) {
	fieldNames := c.registry.Names()
	c.evaluations = make([]*evaluation, 0, len(c.model.Expressions))
	c.evalNames = make([]string, 0, len(c.model.Expressions))
	for _, e := range c.model.Expressions {
		names := scope.Names(c.evalNames, fieldNames)
		c.evaluations = append(c.evaluations, &evaluation{
			name:     e.Name,
			compiled: c.compile(ctx, "expression "+e.Name, e.Source, names),
		})
		c.evalNames = append(c.evalNames, e.Name)
	}
	c.evalResults = make([]cty.Value, len(c.evaluations))
	for i := range c.evalResults {
		c.evalResults[i] = ctyconv.Null
	}
	c.evalSeen = make(map[string]uint64)
	c.markEvaluationsDirty()
}

// fieldNames is the compile-time name list of a field's show_if and
// dynamic-extend expressions.
func (c *Controller) fieldNames(f *registry.Field) []string {
	return scope.Names(c.evalNames, f.DependsOn)
}

// fieldScope is the call-time scope matching fieldNames.
func (c *Controller) fieldScope(ctx context.Context, f *registry.Field) scope.Scope {
	return c.builder(ctx).Build(-1, f.DependsOn)
}

func (c *Controller) compileFields(ctx context.Context) {
	full := scope.Names(c.evalNames, c.registry.Names())
	withValue := append(append([]string(nil), full...), valueName)

	c.evalReaders = make(map[string]bool)
	for _, f := range c.registry.Fields() {
		names := c.fieldNames(f)
		if c.readsEvaluations(f) {
			c.evalReaders[f.Name] = true
		}
		f.ShowIf = c.compile(ctx, f.Name+".show_if", f.ShowIfExpression, names)
		f.DynamicExtend = make(map[string]*expr.Compiled, len(f.DynamicExtendExpressions))
		for _, key := range f.ExtendKeys() {
			if compiled := c.compile(ctx, f.Name+".dynamic_extend."+key, f.DynamicExtendExpressions[key], names); compiled != nil {
				f.DynamicExtend[key] = compiled
			}
		}
		f.Transformer = c.compile(ctx, f.Name+".transformer", f.TransformerExpression, withValue)
		f.DataMapper = c.compile(ctx, f.Name+".data_mapping", f.DataMappingExpression, withValue)
	}
}

// readsEvaluations reports whether the show_if or a dynamic-extend
// expression of f names a generic evaluation.
func (c *Controller) readsEvaluations(f *registry.Field) bool {
	if len(c.evalNames) == 0 {
		return false
	}
	sources := []string{f.ShowIfExpression}
	for _, key := range f.ExtendKeys() {
		sources = append(sources, f.DynamicExtendExpressions[key])
	}
	for _, source := range sources {
		if source == "" {
			continue
		}
		vars, _, err := expr.References(source)
		if err != nil {
			continue
		}
		for _, v := range vars {
			if slices.Contains(c.evalNames, v) {
				return true
			}
		}
	}
	return false
}

// warnReservedNames logs fields whose names shadow a base variable or the
// value name of transformers and data mappers.
func (c *Controller) warnReservedNames(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, name := range c.registry.Names() {
		switch {
		case slices.Contains(scope.BaseNames, expr.Sanitize(name)):
			logger.Warn("Field name shadows a base variable in expressions.", "field", name)
		case expr.Sanitize(name) == valueName:
			logger.Warn("Field name is hidden by the value variable in transformers and data mappers.", "field", name)
		}
	}
}

func (c *Controller) markEvaluationsDirty() {
	if len(c.evaluations) > 0 {
		c.evalDirty = true
	}
}

// liveEvaluations exposes the generic evaluation results to scope builders,
// recomputing them on first use after a field or runtime value moved.
type liveEvaluations struct {
	c   *Controller
	ctx context.Context
}

func (l liveEvaluations) EvaluationNames() []string { return l.c.evalNames }

func (l liveEvaluations) EvaluationResults() []cty.Value {
	l.c.ensureEvaluations(l.ctx)
	return l.c.evalResults
}

func (c *Controller) ensureEvaluations(ctx context.Context) {
	if c.evalDirty {
		c.runEvaluations(ctx)
	}
}

// settle re-visits fields that read generic evaluations until none of them
// was last evaluated against older results. It leaves the results fresh.
func (c *Controller) settle(ctx context.Context) error {
	for round := 0; ; round++ {
		c.ensureEvaluations(ctx)
		var stale []string
		for _, name := range c.registry.Names() {
			if c.evalReaders[name] && c.evalSeen[name] != c.evalVersion {
				stale = append(stale, name)
			}
		}
		if len(stale) == 0 {
			return nil
		}
		if round >= c.maxDepth {
			ctxlog.FromContext(ctx).Warn("Evaluation results did not settle; stopping.", "rounds", round, "fields", stale)
			return nil
		}
		for _, name := range stale {
			if err := c.cascade(ctx, name, 0, false); err != nil {
				return err
			}
		}
	}
}

// runEvaluations recomputes every generic evaluation in declaration order.
// Failures yield null.
func (c *Controller) runEvaluations(ctx context.Context) {
	if len(c.evaluations) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)
	fieldNames := c.registry.Names()

	names := make([]string, 0, len(c.evaluations))
	results := make([]cty.Value, 0, len(c.evaluations))
	for _, ev := range c.evaluations {
		v := ctyconv.Null
		if ev.compiled != nil {
			b := scope.Builder{
				Runtime:    c.runtime,
				Evaluator:  scope.Fixed{Names: names, Results: results},
				FieldValue: c.registry.Value,
			}
			sc := b.Build(-1, fieldNames)
			out, err := ev.compiled.Call(sc.Values...)
			if err != nil {
				logger.Debug("Generic evaluation failed.", "expression", ev.name, "error", err)
			} else {
				v = ctyconv.Normalize(out)
			}
		}
		names = append(names, ev.name)
		results = append(results, v)
	}
	c.evalDirty = false
	if !sameValues(c.evalResults, results) {
		c.evalVersion++
	}
	c.evalResults = results
}

func sameValues(a, b []cty.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ctyconv.Same(a[i], b[i]) {
			return false
		}
	}
	return true
}
