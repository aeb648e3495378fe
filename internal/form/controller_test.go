package form

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/registry"
	"github.com/vk/jform/internal/scope"
)

func connect(t *testing.T, m *config.Model, opts []Option, inputs ...Input) (context.Context, *Controller) {
	t.Helper()
	ctx := ctxlog.Discard(context.Background())
	c := New(m, opts...)
	require.NoError(t, c.Connect(ctx, inputs...))
	t.Cleanup(c.Close)
	return ctx, c
}

func field(t *testing.T, c *Controller, name string) *registry.Field {
	t.Helper()
	f, ok := c.Registry().Get(name)
	require.True(t, ok, "field %s", name)
	return f
}

func visibilityModel(persistence config.Persistence) *config.Model {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "A", Default: cty.False},
		{Name: "B", ShowIf: "A", ValuePersistence: persistence, Default: cty.StringVal("default")},
	}
	return m
}

func TestFieldWithoutPredicateIsAlwaysShown(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "plain"},
		{Name: "extended", DynamicExtend: map[string]string{"label": "plain"}},
	}
	ctx, c := connect(t, m, nil)

	for _, v := range []cty.Value{cty.StringVal("x"), cty.NullVal(cty.String), cty.False} {
		require.NoError(t, c.Change(ctx, "plain", v))
		for _, f := range c.Registry().Fields() {
			assert.Equal(t, registry.Visible, f.Shown, f.Name)
		}
	}
}

func TestShowIfScenario(t *testing.T) {
	testCases := []struct {
		name        string
		persistence config.Persistence
		wantHidden  cty.Value
	}{
		{"unset resets to null", config.PersistenceUnset, cty.NullVal(cty.DynamicPseudoType)},
		{"resetOnHide resets to default", config.ResetOnHide, cty.StringVal("default")},
		{"persistent keeps the value", config.Persistent, cty.StringVal("typed")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewMemoryInput(registry.Binding{Name: "B"})
			ctx, c := connect(t, visibilityModel(tc.persistence), nil, b)

			assert.Equal(t, registry.Hidden, c.Registry().Shown("B"))
			assert.False(t, b.Shown())

			require.NoError(t, c.Change(ctx, "A", cty.True))
			assert.Equal(t, registry.Visible, c.Registry().Shown("B"))
			assert.True(t, b.Shown())

			require.NoError(t, c.Change(ctx, "B", cty.StringVal("typed")))
			require.NoError(t, c.Change(ctx, "A", cty.False))
			assert.Equal(t, registry.Hidden, c.Registry().Shown("B"))

			got := field(t, c, "B").Value
			if tc.wantHidden.IsNull() {
				assert.True(t, got.IsNull(), "got %#v", got)
				assert.True(t, b.Value().IsNull())
			} else {
				assert.True(t, got.RawEquals(tc.wantHidden), "got %#v", got)
				assert.True(t, b.Value().RawEquals(tc.wantHidden))
			}
		})
	}
}

func TestCompiledNamesMatchDependsOn(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "first-name"},
		{Name: "age", ShowIf: "first_name != \"\"", DynamicExtend: map[string]string{"label": "isAdult ? \"adult\" : \"minor\""}},
		{Name: "notes", DependsOn: []string{"age"}, ShowIf: "age > 3"},
	}
	m.Expressions = []*config.Expression{{Name: "isAdult", Source: "age != null && age >= 18"}}
	_, c := connect(t, m, nil)

	for _, f := range c.Registry().Fields() {
		require.NotNil(t, f.DependsOn, f.Name)
		want := scope.Names([]string{"isAdult"}, f.DependsOn)
		if f.ShowIf != nil {
			assert.Equal(t, want, f.ShowIf.Names(), f.Name)
		}
		for key, compiled := range f.DynamicExtend {
			assert.Equal(t, want, compiled.Names(), f.Name+"."+key)
		}
	}
	assert.Equal(t, []string{"age"}, field(t, c, "notes").DependsOn)
	assert.Equal(t, []string{"first-name", "age", "notes"}, field(t, c, "age").DependsOn)
}

func TestRefreshIsIdempotent(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "count", Default: cty.NumberIntVal(2)},
		{Name: "many", ShowIf: "count > 1", DynamicExtend: map[string]string{"enabled": "count < 5", "hint": "\"${count} items\""}},
		{Name: "total", DynamicExtend: map[string]string{"value": "count * 10"}},
	}
	in := NewMemoryInput(registry.Binding{Name: "many"})
	ctx, c := connect(t, m, nil, in)

	before := c.State()
	trigger := in.ChangeTrigger()
	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.Refresh(ctx))
	after := c.State()

	require.Len(t, after.Fields, len(before.Fields))
	for i := range before.Fields {
		assert.Equal(t, before.Fields[i].Shown, after.Fields[i].Shown)
		assert.True(t, before.Fields[i].Value.RawEquals(after.Fields[i].Value), before.Fields[i].Name)
		for k, v := range before.Fields[i].Properties {
			assert.True(t, v.RawEquals(after.Fields[i].Properties[k]), k)
		}
	}
	assert.Equal(t, trigger, in.ChangeTrigger(), "an unchanged field must not toggle its trigger")

	total := field(t, c, "total").Value
	assert.True(t, total.Equals(cty.NumberIntVal(20)).True())
	disabled, ok := in.Property("disabled")
	require.True(t, ok)
	assert.True(t, disabled.RawEquals(cty.False))
	hint, _ := in.Property("hint")
	assert.True(t, hint.RawEquals(cty.StringVal("2 items")))
}

func TestEvaluationsStayFreshWithinCascade(t *testing.T) {
	tests := []struct {
		name   string
		fields []*config.Field
	}{
		{
			name: "reader after writer",
			fields: []*config.Field{
				{Name: "amount", Default: cty.NumberIntVal(10)},
				{Name: "double", DynamicExtend: map[string]string{"value": "amount * 2"}},
				{Name: "note", ShowIf: "big", ValuePersistence: config.Persistent},
			},
		},
		{
			name: "reader before writer, not a dependent of it",
			fields: []*config.Field{
				{Name: "amount", Default: cty.NumberIntVal(10)},
				{Name: "note", ShowIf: "big", ValuePersistence: config.Persistent, DependsOn: []string{"amount"}},
				{Name: "double", DynamicExtend: map[string]string{"value": "amount * 2"}, DependsOn: []string{"amount"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := config.New()
			m.Fields = tt.fields
			m.Expressions = []*config.Expression{{Name: "big", Source: "double > 100"}}
			ctx, c := connect(t, m, nil)
			require.False(t, field(t, c, "note").IsShown())

			require.NoError(t, c.Change(ctx, "amount", cty.NumberIntVal(80)))
			s := c.State()
			assert.True(t, s.Evaluations["big"].True())
			note, _ := s.Field("note")
			assert.True(t, note.Shown, "note follows the evaluation refreshed by double")

			require.NoError(t, c.Refresh(ctx))
			again := c.State()
			for i := range s.Fields {
				assert.Equal(t, s.Fields[i].Shown, again.Fields[i].Shown, s.Fields[i].Name)
				assert.True(t, s.Fields[i].Value.RawEquals(again.Fields[i].Value), s.Fields[i].Name)
			}

			require.NoError(t, c.Change(ctx, "amount", cty.NumberIntVal(5)))
			assert.False(t, field(t, c, "note").IsShown())
		})
	}
}

func TestReservedFieldNamesAreReported(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "pending", Default: cty.False},
		{Name: "value", Default: cty.StringVal("v")},
		{Name: "email"},
	}
	logs := &bytes.Buffer{}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))
	c := New(m)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)

	out := logs.String()
	assert.Contains(t, out, "field=pending")
	assert.Contains(t, out, "field=value")
	assert.NotContains(t, out, "field=email")
}

func TestDynamicExtendPropertyMapping(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "locked", Default: cty.False},
		{Name: "target", DynamicExtend: map[string]string{"enabled": "!locked", "editable": "!locked", "readonly": "locked"}},
	}
	in := NewMemoryInput(registry.Binding{Name: "target"})
	ctx, c := connect(t, m, nil, in)

	require.NoError(t, c.Change(ctx, "locked", cty.True))
	for prop, want := range map[string]cty.Value{"disabled": cty.True, "readOnly": cty.True} {
		got, ok := in.Property(prop)
		require.True(t, ok, prop)
		assert.True(t, got.RawEquals(want), prop)
	}
	_, ok := in.Property("enabled")
	assert.False(t, ok, "logical names are not written")
}

func TestGenericEvaluationsAreSequential(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{{Name: "price", Default: cty.NumberIntVal(10)}, {Name: "qty", Default: cty.NumberIntVal(3)}}
	m.Expressions = []*config.Expression{
		{Name: "subtotal", Source: "price * qty"},
		{Name: "total", Source: "subtotal + 5"},
		{Name: "early", Source: "late"},
		{Name: "late", Source: "1"},
	}
	ctx, c := connect(t, m, nil)

	s := c.State()
	assert.True(t, s.Evaluations["subtotal"].Equals(cty.NumberIntVal(30)).True())
	assert.True(t, s.Evaluations["total"].Equals(cty.NumberIntVal(35)).True())
	assert.True(t, s.Evaluations["early"].IsNull(), "a later evaluation is not in scope")

	require.NoError(t, c.Change(ctx, "qty", cty.NumberIntVal(4)))
	assert.True(t, c.State().Evaluations["total"].Equals(cty.NumberIntVal(45)).True())

	v, err := c.Evaluate(ctx, "total > 40 && tools.form == \"\"")
	require.NoError(t, err)
	assert.True(t, v.True())
}

func TestCascadeDepthBound(t *testing.T) {
	model := func() *config.Model {
		m := config.New()
		m.Fields = []*config.Field{
			{Name: "a", Default: cty.NumberIntVal(0)},
			{Name: "b", DependsOn: []string{"a"}, DynamicExtend: map[string]string{"value": "a + 1"}},
			{Name: "c", DependsOn: []string{"b"}, DynamicExtend: map[string]string{"value": "b + 1"}},
		}
		return m
	}

	t.Run("default depth reaches the whole chain", func(t *testing.T) {
		ctx, c := connect(t, model(), nil)
		require.NoError(t, c.Change(ctx, "a", cty.NumberIntVal(5)))
		assert.True(t, field(t, c, "c").Value.Equals(cty.NumberIntVal(7)).True())
	})

	t.Run("bounded depth stops early", func(t *testing.T) {
		ctx, c := connect(t, model(), []Option{WithMaxDepth(1)})
		assert.True(t, field(t, c, "c").Value.Equals(cty.NumberIntVal(2)).True())

		require.NoError(t, c.Change(ctx, "a", cty.NumberIntVal(5)))
		assert.True(t, field(t, c, "b").Value.Equals(cty.NumberIntVal(6)).True())
		assert.True(t, field(t, c, "c").Value.Equals(cty.NumberIntVal(2)).True())
	})
}

func TestTickRunsBetweenFieldAndDependents(t *testing.T) {
	var ticks int
	counter := TickerFunc(func(ctx context.Context) error {
		ticks++
		return nil
	})
	m := visibilityModel(config.PersistenceUnset)
	m.Fields[0].DependsOn = []string{}
	ctx, c := connect(t, m, []Option{WithTick(counter)})

	ticks = 0
	require.NoError(t, c.Change(ctx, "A", cty.True))
	assert.Equal(t, 1, ticks, "A has one dependent; B has none")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	c2 := New(visibilityModel(config.PersistenceUnset), WithTick(Immediate()))
	require.NoError(t, c2.Connect(ctx))
	defer c2.Close()
	assert.ErrorIs(t, c2.Change(cancelled, "A", cty.True), context.Canceled)
}

func TestBrokenExpressionsDegrade(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "a", Default: cty.StringVal("x")},
		{Name: "syntax", ShowIf: "a ==="},
		{Name: "unknown", ShowIf: "nosuchfield"},
		{Name: "runtime", ShowIf: "a > 3"},
		{Name: "extend", DynamicExtend: map[string]string{"label": "upper(a)", "broken": "shell(a)"}},
	}
	_, c := connect(t, m, nil)

	assert.Equal(t, registry.Hidden, c.Registry().Shown("syntax"))
	assert.Equal(t, registry.Hidden, c.Registry().Shown("unknown"))
	assert.Equal(t, registry.Hidden, c.Registry().Shown("runtime"))
	assert.Equal(t, registry.Visible, c.Registry().Shown("a"))

	ext := field(t, c, "extend")
	assert.True(t, ext.Properties["label"].RawEquals(cty.StringVal("X")))
	assert.NotContains(t, ext.Properties, "broken")
}

func TestComputedFields(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{{Name: "address", Default: cty.ObjectVal(map[string]cty.Value{"city": cty.StringVal("Oslo")})}}
	dotted := NewMemoryInput(registry.Binding{Name: "address.city"})
	ctx, c := connect(t, m, nil, dotted)

	f := field(t, c, "address.city")
	assert.True(t, f.Computed)
	assert.Equal(t, []string{"address"}, f.DependsOn)
	assert.True(t, dotted.Value().RawEquals(cty.StringVal("Oslo")))

	require.NoError(t, c.Change(ctx, "address", cty.ObjectVal(map[string]cty.Value{"city": cty.StringVal("Bergen")})))
	assert.True(t, dotted.Value().RawEquals(cty.StringVal("Bergen")))

	collected := c.Collect(ctx)
	assert.NotContains(t, collected.Payload, "address.city")
}

func TestPrototypingMode(t *testing.T) {
	in := NewMemoryInput(registry.Binding{Name: "free", Value: cty.StringVal("hi")})
	ctx, c := connect(t, config.New(), nil, in)

	f := field(t, c, "free")
	assert.True(t, f.Passthrough)
	require.NoError(t, c.Change(ctx, "free", cty.StringVal("there")))
	assert.True(t, c.Collect(ctx).Payload["free"].RawEquals(cty.StringVal("there")))
}

func TestInputSubscriptionLifecycle(t *testing.T) {
	a := NewMemoryInput(registry.Binding{Name: "A"})
	b := NewMemoryInput(registry.Binding{Name: "B"})
	ctx := ctxlog.Discard(context.Background())
	c := New(visibilityModel(config.PersistenceUnset))
	require.NoError(t, c.Connect(ctx, a, b))
	assert.Equal(t, 1, a.Listeners())

	a.Emit(cty.True)
	assert.True(t, b.Shown(), "user edits cascade through the subscription")

	require.NoError(t, c.Connect(ctx, a, b))
	assert.Equal(t, 1, a.Listeners(), "reconnect replaces subscriptions")

	c.Close()
	assert.Equal(t, 0, a.Listeners())
	a.Emit(cty.False)
	assert.True(t, b.Shown(), "closed controller ignores edits")
	assert.ErrorIs(t, c.Change(ctx, "A", cty.False), ErrNotConnected)
}

func TestChangeUnknownField(t *testing.T) {
	ctx, c := connect(t, visibilityModel(config.PersistenceUnset), nil)
	assert.ErrorIs(t, c.Change(ctx, "nope", cty.True), ErrUnknownField)
}

func TestHydrate(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	c := New(visibilityModel(config.Persistent))
	require.NoError(t, c.Hydrate(ctx, map[string]cty.Value{"A": cty.True, "B": cty.StringVal("from-url"), "zzz": cty.True}))
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, registry.Visible, c.Registry().Shown("B"))
	assert.True(t, field(t, c, "B").Value.RawEquals(cty.StringVal("from-url")))

	require.NoError(t, c.Hydrate(ctx, map[string]cty.Value{"A": cty.False}))
	assert.Equal(t, registry.Hidden, c.Registry().Shown("B"))
}

func TestUpdateRuntime(t *testing.T) {
	m := config.New()
	m.Fields = []*config.Field{{Name: "busy", ShowIf: "pending"}}
	ctx, c := connect(t, m, nil)
	assert.Equal(t, registry.Hidden, c.Registry().Shown("busy"))

	require.NoError(t, c.UpdateRuntime(ctx, func(rt *scope.Runtime) { rt.Pending = true }))
	assert.Equal(t, registry.Visible, c.Registry().Shown("busy"))
	assert.True(t, c.Runtime().Pending)
}
