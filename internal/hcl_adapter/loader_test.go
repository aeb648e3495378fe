package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const signupHCL = `
form "signup" {
  locale      = "en-GB"
  tag_headers = { "X-Campaign" = "spring" }
}

field "newsletter" {
  default = false
  options = ["yes", "no"]
}

field "email" {
  show_if           = "newsletter"
  value_persistence = "resetOnHide"
  default           = ""
  target            = "contact_email"
  properties        = { label = "E-mail" }
}

field "amount" {
  depends_on     = []
  dynamic_extend = { enabled = "newsletter" }
}

expression "isBig" {
  source = "amount > 100"
}

constraint {
  description = "Amount must be positive"
  evaluation  = "amount > 0"
}

action "promo" {
  code   = "isBig"
  target = "/promo"
}

action "generic" {
  code   = "fallback"
  target = "/thanks"
}

group "contact" {
  children = ["email"]
}

target {
  url    = "https://api.example.com/signup"
  method = "PUT"
  body   = { source = "cli" }
}

url_model_mask {
  deny = ["amount"]
}

response {
  wrapper_path = "data"
  optional     = true
}

messages {
  generic = "Try again later."
}
`

func TestLoadNativeSyntax(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	path := write(t, dir, "signup.hcl", signupHCL)

	model, err := NewLoader().Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, "signup", model.Name)
	assert.Equal(t, "en-GB", model.Locale)
	assert.Equal(t, config.DefaultSecurityResponsePrefix, model.SecurityResponsePrefix)
	assert.Equal(t, config.DefaultURLParam, model.URLParam)
	assert.Equal(t, map[string]string{"X-Campaign": "spring"}, model.TagHeaders)

	require.Len(t, model.Fields, 3)
	assert.Equal(t, "newsletter", model.Fields[0].Name)
	assert.Equal(t, "email", model.Fields[1].Name)
	assert.Equal(t, "amount", model.Fields[2].Name)

	newsletter := model.Fields[0]
	assert.True(t, newsletter.Default.RawEquals(cty.False))
	assert.Equal(t, 2, newsletter.Options)
	assert.Nil(t, newsletter.DependsOn, "undeclared depends_on stays nil")

	email := model.Fields[1]
	assert.Equal(t, "newsletter", email.ShowIf)
	assert.Equal(t, config.ResetOnHide, email.ValuePersistence)
	assert.Equal(t, "contact_email", email.Target)
	assert.True(t, email.Properties["label"].RawEquals(cty.StringVal("E-mail")))

	amount := model.Fields[2]
	assert.NotNil(t, amount.DependsOn)
	assert.Empty(t, amount.DependsOn)
	assert.False(t, amount.HasDefault())
	assert.Equal(t, map[string]string{"enabled": "newsletter"}, amount.DynamicExtend)

	require.Len(t, model.Expressions, 1)
	assert.Equal(t, "amount > 100", model.Expressions[0].Source)
	require.Len(t, model.Constraints, 1)
	assert.Equal(t, "Amount must be positive", model.Constraints[0].Description)
	require.Len(t, model.Actions, 2)
	assert.Equal(t, "promo", model.Actions[0].Name)
	assert.Equal(t, "fallback", model.Actions[1].Code)
	require.Len(t, model.Groups, 1)
	assert.Equal(t, []string{"email"}, model.Groups[0].Children)

	require.NotNil(t, model.Target)
	assert.Equal(t, "PUT", model.Target.Method)
	assert.True(t, model.Target.Body.GetAttr("source").RawEquals(cty.StringVal("cli")))
	assert.Nil(t, model.InitializeTarget)

	assert.Equal(t, []string{"amount"}, model.URLModelMask.Deny)
	assert.Equal(t, config.ResponseWrapper{Path: "data", Optional: true}, model.ResponseWrapper)
	assert.Equal(t, "Try again later.", model.Messages.Generic)
	assert.Equal(t, config.DefaultMessages().Stale, model.Messages.Stale)
}

func TestLoadJSONSyntax(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	path := write(t, dir, "form.json", `{
  "form": {"quote": {"security_response_prefix": "", "url_state_param": "q"}},
  "field": {
    "amount": {"default": 10, "show_if": "true"},
    "note": {}
  },
  "constraint": [{"description": "positive", "evaluation": "amount > 0"}],
  "target": {"url": "https://example.com/quote"},
  "url_model_mask": {"allow": {"model": {"amount": {"value": true}, "note": false}}}
}`)

	model, err := NewLoader().Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, "quote", model.Name)
	assert.Equal(t, "", model.SecurityResponsePrefix, "an explicit empty prefix disables stripping")
	assert.Equal(t, "q", model.URLParam)
	f, ok := model.Field("amount")
	require.True(t, ok)
	assert.True(t, f.Default.Equals(cty.NumberIntVal(10)).True())
	require.Len(t, model.Constraints, 1)

	note, ok := model.Field("note")
	require.True(t, ok)
	assert.False(t, note.HasDefault(), "an omitted default stays unset")
	assert.Nil(t, note.Properties)
	assert.Nil(t, note.DependsOn)

	require.NotNil(t, model.Target)
	assert.Equal(t, cty.NilVal, model.Target.Body, "an omitted body stays unset")
	assert.Equal(t, []string{"amount"}, model.URLModelMask.Allow)
}

func TestLoadMaskForms(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	testCases := []struct {
		name      string
		mask      string
		wantAllow []string
		wantDeny  []string
		wantErr   string
	}{
		{name: "name lists", mask: `allow = ["a", "b"]
deny = ["b"]`, wantAllow: []string{"a", "b"}, wantDeny: []string{"b"}},
		{name: "state tree", mask: `allow = { model = { a = { value = true }, b = { value = true } } }`, wantAllow: []string{"a", "b"}},
		{name: "flat tree", mask: `deny = { a = true, b = false }`, wantDeny: []string{"a"}},
		{name: "wrong type", mask: `allow = 3`, wantErr: "must be a list of names or an object"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := write(t, t.TempDir(), "form.hcl", "url_model_mask {\n"+tc.mask+"\n}\n")
			model, err := NewLoader().Load(ctx, path)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantAllow, model.URLModelMask.Allow)
			assert.Equal(t, tc.wantDeny, model.URLModelMask.Deny)
		})
	}
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	write(t, dir, "a_form.hcl", `form "split" {}
field "first" {}`)
	write(t, dir, "b_fields.hcl", `field "second" {}`)
	write(t, dir, "README.md", `not configuration`)

	model, err := NewLoader().Load(ctx, dir)
	require.NoError(t, err)
	require.Len(t, model.Fields, 2)
	assert.Equal(t, "first", model.Fields[0].Name)
	assert.Equal(t, "second", model.Fields[1].Name)
}

func TestLoadErrors(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"bad.hcl": `field "a" {`},
			wantErr: "failed to parse configuration file",
		},
		{
			name:    "missing required attribute",
			files:   map[string]string{"bad.hcl": `constraint { description = "x" }`},
			wantErr: "failed to decode configuration file",
		},
		{
			name:    "duplicate field",
			files:   map[string]string{"dup.hcl": "field \"a\" {}\nfield \"a\" {}"},
			wantErr: `duplicate field "a"`,
		},
		{
			name:    "unknown persistence",
			files:   map[string]string{"p.hcl": `field "a" { value_persistence = "forever" }`},
			wantErr: "unknown value_persistence",
		},
		{
			name: "form declared twice",
			files: map[string]string{
				"one.hcl": `form "a" {}`,
				"two.hcl": `form "b" {}`,
			},
			wantErr: "form block declared in both",
		},
		{
			name:    "properties must be an object",
			files:   map[string]string{"p.hcl": `field "a" { properties = "label" }`},
			wantErr: "must be an object",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				write(t, dir, name, content)
			}
			_, err := NewLoader().Load(ctx, dir)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	t.Run("empty directory", func(t *testing.T) {
		_, err := NewLoader().Load(ctx, t.TempDir())
		assert.ErrorContains(t, err, "no configuration files found")
	})
}
