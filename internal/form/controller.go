package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/dag"
	"github.com/vk/jform/internal/expr"
	"github.com/vk/jform/internal/registry"
	"github.com/vk/jform/internal/scope"
)

// ErrUnknownField is returned for changes to names the form does not know.
var ErrUnknownField = errors.New("unknown field")

// ErrNotConnected is returned by operations that need bound inputs.
var ErrNotConnected = errors.New("form is not connected")

// Controller is the reactive update engine of one form instance.
type Controller struct {
	mu sync.Mutex

	model    *config.Model
	compiler *expr.Compiler
	registry *registry.Registry
	graph    *dag.Graph
	inputs   map[string]Input

	runtime     scope.Runtime
	evaluations []*evaluation
	evalNames   []string
	evalResults []cty.Value
	// evalDirty marks results that no longer match field and runtime values.
	evalDirty   bool
	evalVersion uint64
	evalReaders map[string]bool
	evalSeen    map[string]uint64
	groups      []*group

	tick     Ticker
	maxDepth int
	now      func() time.Time

	unsubscribe []func()
	hydrate     map[string]cty.Value
	connected   bool
	listenCtx   context.Context
}

type evaluation struct {
	name     string
	compiled *expr.Compiled
}

// New creates a controller for the given configuration.
func New(model *config.Model, opts ...Option) *Controller {
	if model == nil {
		model = config.New()
	}
	c := &Controller{
		model:    model,
		registry: registry.New(model),
		graph:    dag.New(),
		inputs:   make(map[string]Input),
		tick:     Immediate(),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
		hydrate:  make(map[string]cty.Value),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.compiler == nil {
		c.compiler = expr.NewCompiler(expr.DefaultCacheSize)
	}
	c.runtime = scope.NewRuntime(scope.ToolsValue(model.Name, model.Locale, c.now()))
	return c
}

// Model returns the configuration the controller was built from.
func (c *Controller) Model() *config.Model { return c.model }

// Registry exposes the field records. Callers must not mutate them while
// the controller is in use.
func (c *Controller) Registry() *registry.Registry { return c.registry }

// Graph returns the dependency graph of the last Connect.
func (c *Controller) Graph() *dag.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

// Connect binds the given inputs. Configured fields are resolved in
// declaration order, using the matching input or a detached MemoryInput;
// remaining inputs (computed names, prototyping) follow in argument order.
// Connecting again replaces the previous bindings and subscriptions.
func (c *Controller) Connect(ctx context.Context, inputs ...Input) error {
	ctx, logger := ctxlog.With(ctx, "form", c.model.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardown()
	c.inputs = make(map[string]Input)
	c.listenCtx = ctx

	byName := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		if _, dup := byName[in.Name()]; dup {
			return fmt.Errorf("duplicate input %q", in.Name())
		}
		byName[in.Name()] = in
	}

	bind := func(in Input) {
		b := in.Declared()
		b.Name = in.Name()
		if _, ok := c.registry.Resolve(ctx, b); ok {
			c.inputs[b.Name] = in
		}
	}
	for _, seed := range c.model.Fields {
		in, ok := byName[seed.Name]
		if !ok {
			in = NewMemoryInput(registry.Binding{Name: seed.Name})
			logger.Debug("Field has no host input, binding a detached one.", "field", seed.Name)
		}
		delete(byName, seed.Name)
		bind(in)
	}
	for _, in := range inputs {
		if _, pending := byName[in.Name()]; pending {
			bind(in)
		}
	}
	// Records outlive their inputs across reconnects.
	for _, f := range c.registry.Fields() {
		if _, ok := c.inputs[f.Name]; !ok {
			c.inputs[f.Name] = NewMemoryInput(registry.Binding{Name: f.Name})
		}
	}

	for name, v := range c.hydrate {
		if f, ok := c.registry.Get(name); ok {
			f.Value = ctyconv.Normalize(v)
		}
	}
	c.hydrate = make(map[string]cty.Value)
	c.warnReservedNames(ctx)

	c.registry.ResolveDependsOn(ctx)
	c.compileEvaluations(ctx)
	c.compileFields(ctx)
	c.compileGroups(ctx)

	entries := make([]dag.Entry, 0, c.registry.Len())
	for _, f := range c.registry.Fields() {
		entries = append(entries, dag.Entry{Name: f.Name, DependsOn: f.DependsOn})
	}
	c.graph = dag.Build(ctx, entries)
	if err := c.graph.DetectCycles(); err != nil {
		logger.Debug("Dependency graph has cycles; cascades stop on convergence.", "detail", err)
	}

	for _, f := range c.registry.Fields() {
		in := c.inputs[f.Name]
		in.SetValue(f.Value)
		for prop, v := range f.Properties {
			in.SetProperty(prop, v)
		}
		name := f.Name
		c.unsubscribe = append(c.unsubscribe, in.Subscribe(func(v cty.Value) {
			c.onInput(name, v)
		}))
	}
	c.connected = true

	logger.Debug("Form connected.", "fields", c.registry.Len(), "evaluations", len(c.evaluations), "groups", len(c.groups))
	return c.refresh(ctx)
}

// Close removes every input subscription. The controller keeps its state and
// may be connected again.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
	c.connected = false
}

func (c *Controller) teardown() {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.unsubscribe = nil
}

// onInput handles change notifications from host inputs.
func (c *Controller) onInput(name string, v cty.Value) {
	c.mu.Lock()
	ctx := c.listenCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.Change(ctx, name, v); err != nil {
		ctxlog.FromContext(ctx).Warn("Change from input failed.", "field", name, "error", err)
	}
}

// Change writes a new value for name and cascades it through the form.
func (c *Controller) Change(ctx context.Context, name string, v cty.Value) error {
	ctx, logger := ctxlog.With(ctx, "form", c.model.Name, "field", name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	f, ok := c.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	f.Value = ctyconv.Normalize(v)
	c.inputs[name].SetValue(f.Value)
	c.markEvaluationsDirty()
	logger.Debug("Field changed.")

	if err := c.cascade(ctx, name, 0, true); err != nil {
		return err
	}
	if err := c.settle(ctx); err != nil {
		return err
	}
	c.recomputeGroups(ctx)
	return nil
}

// Refresh re-evaluates every field, for example after runtime state changed.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) error {
	c.markEvaluationsDirty()
	for _, name := range c.registry.Names() {
		if err := c.cascade(ctx, name, 0, false); err != nil {
			return err
		}
	}
	if err := c.settle(ctx); err != nil {
		return err
	}
	c.recomputeGroups(ctx)
	return nil
}

// UpdateRuntime applies fn to the runtime base values and refreshes the form
// so expressions observe the new state.
func (c *Controller) UpdateRuntime(ctx context.Context, fn func(rt *scope.Runtime)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.runtime)
	if !c.connected {
		return nil
	}
	return c.refresh(ctx)
}

// Runtime returns a copy of the runtime base values.
func (c *Controller) Runtime() scope.Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtime
}

// Hydrate seeds field values, typically from the URL state. Before Connect
// the values are kept until the fields are resolved; afterwards they are
// written and the form is refreshed. Unknown names are ignored.
func (c *Controller) Hydrate(ctx context.Context, values map[string]cty.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		for k, v := range values {
			c.hydrate[k] = v
		}
		return nil
	}
	for name, v := range values {
		f, ok := c.registry.Get(name)
		if !ok {
			continue
		}
		f.Value = ctyconv.Normalize(v)
		c.inputs[name].SetValue(f.Value)
	}
	return c.refresh(ctx)
}

// Evaluate compiles source against the full scope (base values, every
// generic evaluation, every field) and evaluates it. Compile problems are
// returned as *expr.CompileError.
func (c *Controller) Evaluate(ctx context.Context, source string) (cty.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc := c.fullScope(ctx)
	compiled, err := c.compiler.Compile(source, sc.Names)
	if err != nil {
		return cty.NilVal, err
	}
	return compiled.Call(sc.Values...)
}

func (c *Controller) builder(ctx context.Context) scope.Builder {
	return scope.Builder{Runtime: c.runtime, Evaluator: liveEvaluations{c: c, ctx: ctx}, FieldValue: c.registry.Value}
}

func (c *Controller) fullScope(ctx context.Context) scope.Scope {
	return c.builder(ctx).Build(-1, c.registry.Names())
}
