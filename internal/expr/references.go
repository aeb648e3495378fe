package expr

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// References parses source and returns the sorted, unique root variable
// names and called function names it contains.
func References(source string) (variables []string, functions []string, err error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(source), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, nil, &CompileError{Source: source, Detail: diags.Error()}
	}
	vars, funcs := extractReferences(parsed)
	return vars, funcs, nil
}

// extractReferences walks a parsed expression for root traversals and
// function calls. Results are sorted for deterministic output.
func extractReferences(e hclsyntax.Expression) ([]string, []string) {
	roots := make(map[string]struct{})
	for _, traversal := range e.Variables() {
		roots[traversal.RootName()] = struct{}{}
	}
	functions := make(map[string]struct{})
	walkForFunctions(e, functions)
	return sortedKeys(roots), sortedKeys(functions)
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(e hclsyntax.Expression, functions map[string]struct{}) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[n.Name] = struct{}{}
		for _, arg := range n.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(n.LHS, functions)
		walkForFunctions(n.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(n.Condition, functions)
		walkForFunctions(n.TrueResult, functions)
		walkForFunctions(n.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(n.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range n.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(n.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range n.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range n.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(n.Wrapped, functions)
	case *hclsyntax.ForExpr:
		walkForFunctions(n.CollExpr, functions)
		walkForFunctions(n.KeyExpr, functions)
		walkForFunctions(n.ValExpr, functions)
		walkForFunctions(n.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(n.Collection, functions)
		walkForFunctions(n.Key, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(n.Source, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(n.Source, functions)
		walkForFunctions(n.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(n.Expression, functions)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
