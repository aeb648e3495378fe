package expr

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// DefaultCacheSize is the number of compiled programs a Compiler keeps.
const DefaultCacheSize = 512

// CompileError reports an expression that could not be compiled.
type CompileError struct {
	Source string
	Detail string
}

// Error implements the error interface for CompileError.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %s", e.Source, e.Detail)
}

// Compiled is an immutable pairing of the ordered free-variable names used at
// compile time and the parsed program.
type Compiled struct {
	source string
	names  []string
	idents []string
	expr   hclsyntax.Expression
	funcs  map[string]function.Function
}

// Source returns the expression text.
func (c *Compiled) Source() string { return c.source }

// Names returns a copy of the free-variable names, in compile order.
func (c *Compiled) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Call evaluates the expression. args are positional and must match Names
// one to one.
func (c *Compiled) Call(args ...cty.Value) (result cty.Value, err error) {
	if len(args) != len(c.names) {
		return cty.NilVal, fmt.Errorf("expression %q expects %d arguments, got %d", c.source, len(c.names), len(args))
	}
	vars := make(map[string]cty.Value, len(args))
	for i, ident := range c.idents {
		v := args[i]
		if v.Type() == cty.NilType {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		vars[ident] = v
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = cty.NilVal, fmt.Errorf("expression %q panicked: %v", c.source, r)
		}
	}()

	val, diags := c.expr.Value(&hcl.EvalContext{Variables: vars, Functions: c.funcs})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluate %q: %w", c.source, diags)
	}
	return val, nil
}

// Compiler turns expression sources into Compiled programs and caches them.
type Compiler struct {
	funcs map[string]function.Function
	cache *lru.Cache[string, *Compiled]
}

// NewCompiler creates a compiler with an LRU of the given size. A size of
// zero or less uses DefaultCacheSize.
func NewCompiler(size int) *Compiler {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Compiled](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Compiler{funcs: Functions(), cache: cache}
}

// Compile parses source and validates that it only references the given
// names and whitelisted functions. Compiling the same source with the same
// name order returns the cached program.
func (c *Compiler) Compile(source string, names []string) (*Compiled, error) {
	key := cacheKey(source, names)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	if strings.TrimSpace(source) == "" {
		return nil, &CompileError{Source: source, Detail: "empty expression"}
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(source), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &CompileError{Source: source, Detail: diags.Error()}
	}

	idents := SanitizeAll(names)
	allowed := make(map[string]struct{}, len(idents))
	for _, id := range idents {
		allowed[id] = struct{}{}
	}

	vars, funcs := extractReferences(parsed)
	for _, v := range vars {
		if _, ok := allowed[v]; !ok {
			return nil, &CompileError{Source: source, Detail: fmt.Sprintf("unknown variable %q", v)}
		}
	}
	for _, f := range funcs {
		if _, ok := c.funcs[f]; !ok {
			return nil, &CompileError{Source: source, Detail: fmt.Sprintf("function %q is not available", f)}
		}
	}

	compiled := &Compiled{
		source: source,
		names:  append([]string(nil), names...),
		idents: idents,
		expr:   parsed,
		funcs:  c.funcs,
	}
	c.cache.Add(key, compiled)
	return compiled, nil
}

func cacheKey(source string, names []string) string {
	return source + "\x00" + strings.Join(names, "\x00")
}
