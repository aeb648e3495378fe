package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
)

func testModel() *config.Model {
	m := config.New()
	m.Fields = []*config.Field{
		{Name: "newsletter", Default: cty.False, Options: 2},
		{Name: "email", ShowIf: "newsletter", ValuePersistence: config.ResetOnHide, Default: cty.StringVal("")},
		{Name: "amount", DependsOn: []string{}, Properties: map[string]cty.Value{"label": cty.StringVal("Amount")}},
	}
	return m
}

func TestResolve(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("configuration wins over declared defaults", func(t *testing.T) {
		r := New(testModel())
		f, ok := r.Resolve(ctx, Binding{
			Name:       "newsletter",
			Default:    cty.True,
			Options:    5,
			Properties: map[string]cty.Value{"label": cty.StringVal("News")},
		})
		require.True(t, ok)
		assert.True(t, f.Default.RawEquals(cty.False))
		assert.True(t, f.Value.RawEquals(cty.False), "value starts at the default")
		assert.Equal(t, 2, f.Options)
		assert.True(t, f.Properties["label"].RawEquals(cty.StringVal("News")))
		assert.Nil(t, f.DependsOn)
		assert.Equal(t, VisibilityUnset, f.Shown)
	})

	t.Run("declared value and defaults fill gaps", func(t *testing.T) {
		r := New(testModel())
		f, ok := r.Resolve(ctx, Binding{
			Name:       "amount",
			Value:      cty.NumberIntVal(3),
			Default:    cty.NumberIntVal(1),
			Properties: map[string]cty.Value{"label": cty.StringVal("Declared")},
		})
		require.True(t, ok)
		assert.True(t, f.Value.RawEquals(cty.NumberIntVal(3)))
		assert.True(t, f.Default.RawEquals(cty.NumberIntVal(1)))
		assert.True(t, f.Properties["label"].RawEquals(cty.StringVal("Amount")))
		assert.NotNil(t, f.DependsOn)
	})

	t.Run("discovery is idempotent and ordered", func(t *testing.T) {
		r := New(testModel())
		first, _ := r.Resolve(ctx, Binding{Name: "email"})
		second, _ := r.Resolve(ctx, Binding{Name: "email", Value: cty.StringVal("x")})
		assert.Same(t, first, second)

		_, _ = r.Resolve(ctx, Binding{Name: "newsletter"})
		assert.Equal(t, []string{"email", "newsletter"}, r.Names())
		assert.Equal(t, 1, r.Fields()[1].Order)
	})

	t.Run("unknown input is not bound", func(t *testing.T) {
		r := New(testModel())
		_, ok := r.Resolve(ctx, Binding{Name: "nickname"})
		assert.False(t, ok)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("dotted name is a computed projection", func(t *testing.T) {
		r := New(testModel())
		f, ok := r.Resolve(ctx, Binding{Name: "address.city"})
		require.True(t, ok)
		assert.True(t, f.Computed)
		assert.Equal(t, map[string]string{"value": "address.city"}, f.DynamicExtendExpressions)
	})

	t.Run("prototyping synthesizes passthrough entries", func(t *testing.T) {
		r := New(config.New())
		f, ok := r.Resolve(ctx, Binding{Name: "anything", Default: cty.StringVal("d")})
		require.True(t, ok)
		assert.True(t, f.Passthrough)
		assert.True(t, f.Value.RawEquals(cty.StringVal("d")))
		assert.NotNil(t, f.DependsOn)
		assert.False(t, f.HasDynamicBehaviour())
	})
}

func TestResolveDependsOn(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	r := New(testModel())
	for _, name := range []string{"newsletter", "email", "amount", "email.domain"} {
		_, ok := r.Resolve(ctx, Binding{Name: name})
		require.True(t, ok)
	}

	r.ResolveDependsOn(ctx)

	all := []string{"newsletter", "email", "amount", "email.domain"}
	for _, f := range r.Fields() {
		require.NotNil(t, f.DependsOn, f.Name)
	}
	email, _ := r.Get("email")
	assert.Equal(t, all, email.DependsOn)

	amount, _ := r.Get("amount")
	assert.Empty(t, amount.DependsOn, "declared dependencies are kept")

	computed, _ := r.Get("email.domain")
	assert.Equal(t, []string{"newsletter", "email", "amount"}, computed.DependsOn)
}

func TestResets(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	r := New(testModel())
	f, _ := r.Resolve(ctx, Binding{Name: "email"})
	f.Value = cty.StringVal("a@b.c")

	_, ok := r.ResetToDefault("email")
	require.True(t, ok)
	assert.True(t, r.Value("email").RawEquals(cty.StringVal("")))

	f.Value = cty.StringVal("a@b.c")
	_, ok = r.ResetToNull("email")
	require.True(t, ok)
	assert.True(t, r.Value("email").IsNull())

	amount, _ := r.Resolve(ctx, Binding{Name: "amount", Value: cty.NumberIntVal(4)})
	r.ResetToDefault("amount")
	assert.True(t, amount.Value.IsNull(), "no default resets to null")

	_, ok = r.ResetToNull("missing")
	assert.False(t, ok)
	assert.Equal(t, VisibilityUnset, r.Shown("missing"))
	assert.True(t, r.Value("missing").IsNull())
}

func TestMapProperty(t *testing.T) {
	testCases := []struct {
		logical string
		in      cty.Value
		target  string
		want    cty.Value
	}{
		{"enabled", cty.True, "disabled", cty.False},
		{"enabled", cty.StringVal(""), "disabled", cty.True},
		{"editable", cty.False, "readOnly", cty.True},
		{"readonly", cty.True, "readOnly", cty.True},
		{"label", cty.StringVal("Hi"), "label", cty.StringVal("Hi")},
	}
	for _, tc := range testCases {
		t.Run(tc.logical, func(t *testing.T) {
			p := MapProperty(tc.logical)
			assert.Equal(t, tc.target, p.Target)
			assert.True(t, p.Apply(tc.in).RawEquals(tc.want))
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	f := &Field{Name: "email", DynamicExtendExpressions: map[string]string{"b": "1", "a": "2"}}
	assert.Equal(t, []string{"a", "b"}, f.ExtendKeys())
	assert.True(t, f.HasDynamicBehaviour())
	assert.True(t, f.IsShown())
	f.Shown = Hidden
	assert.False(t, f.IsShown())
	assert.Equal(t, "email", f.OutboundName())
	f.Target = "contact"
	assert.Equal(t, "contact", f.OutboundName())
	assert.Equal(t, "hidden", f.Shown.String())
	assert.Equal(t, Visible, VisibilityOf(true))
}
