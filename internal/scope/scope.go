// Package scope assembles the positional argument list passed into every
// compiled expression: the runtime base values, then generic evaluation
// results, then field values.
//
// Names and values are always produced together from the same inputs, so the
// order an expression was compiled with and the order it is called with can
// not drift apart.
package scope

import (
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctyconv"
)

// Base variable names, in positional order.
const (
	InitialResponse = "initialResponse"
	LatestResponse  = "latestResponse"
	Pending         = "pending"
	Response        = "response"
	OnceSubmitted   = "onceSubmitted"
	Tools           = "tools"
)

// BaseNames is the fixed positional prefix of every scope.
var BaseNames = []string{InitialResponse, LatestResponse, Pending, Response, OnceSubmitted, Tools}

// Runtime holds the base values shared by all expressions of a form.
type Runtime struct {
	InitialResponse cty.Value
	LatestResponse  cty.Value
	Pending         bool
	Response        cty.Value
	OnceSubmitted   bool
	Tools           cty.Value
}

// NewRuntime returns a runtime with null responses and the given tools.
func NewRuntime(tools cty.Value) Runtime {
	return Runtime{
		InitialResponse: ctyconv.Null,
		LatestResponse:  ctyconv.Null,
		Response:        ctyconv.Null,
		Tools:           ctyconv.Normalize(tools),
	}
}

// Values returns the base values in BaseNames order.
func (r Runtime) Values() []cty.Value {
	return []cty.Value{
		ctyconv.Normalize(r.InitialResponse),
		ctyconv.Normalize(r.LatestResponse),
		cty.BoolVal(r.Pending),
		ctyconv.Normalize(r.Response),
		cty.BoolVal(r.OnceSubmitted),
		ctyconv.Normalize(r.Tools),
	}
}

// ToolsValue builds the tools namespace object.
func ToolsValue(formName, locale string, now time.Time) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"today":  cty.StringVal(now.Format("2006-01-02")),
		"now":    cty.StringVal(now.Format(time.RFC3339)),
		"form":   cty.StringVal(formName),
		"locale": cty.StringVal(locale),
	})
}

// Scope is an ordered list of names paired with their values.
type Scope struct {
	Names  []string
	Values []cty.Value
}

// With returns a copy of the scope with one extra trailing variable.
func (s Scope) With(name string, v cty.Value) Scope {
	return Scope{
		Names:  append(append([]string(nil), s.Names...), name),
		Values: append(append([]cty.Value(nil), s.Values...), ctyconv.Normalize(v)),
	}
}

// Names returns base names + evaluation names + field names, in that order.
func Names(evalNames, fieldNames []string) []string {
	out := make([]string, 0, len(BaseNames)+len(evalNames)+len(fieldNames))
	out = append(out, BaseNames...)
	out = append(out, evalNames...)
	return append(out, fieldNames...)
}

// Evaluator produces the generic evaluation results. Build calls
// EvaluationResults only for scopes that include at least one evaluation, so
// an implementation may compute the results on demand.
type Evaluator interface {
	EvaluationNames() []string
	EvaluationResults() []cty.Value
}

// Builder assembles scopes from a runtime, an evaluator and a field lookup.
type Builder struct {
	Runtime    Runtime
	Evaluator  Evaluator
	FieldValue func(name string) cty.Value
}

// Build returns the scope for an expression that reads the first evalCount
// generic evaluations and the given fields. A negative evalCount includes
// all evaluations.
func (b Builder) Build(evalCount int, fieldNames []string) Scope {
	var evalNames []string
	var evalValues []cty.Value
	if b.Evaluator != nil {
		evalNames = b.Evaluator.EvaluationNames()
		if evalCount < 0 || evalCount > len(evalNames) {
			evalCount = len(evalNames)
		}
		evalNames = evalNames[:evalCount]
		if evalCount > 0 {
			evalValues = b.Evaluator.EvaluationResults()[:evalCount]
		}
	}

	values := make([]cty.Value, 0, len(BaseNames)+len(evalNames)+len(fieldNames))
	values = append(values, b.Runtime.Values()...)
	values = append(values, evalValues...)
	for _, name := range fieldNames {
		v := ctyconv.Null
		if b.FieldValue != nil {
			v = ctyconv.Normalize(b.FieldValue(name))
		}
		values = append(values, v)
	}
	return Scope{Names: Names(evalNames, fieldNames), Values: values}
}

// Fixed is an Evaluator over results that are already computed. The
// evaluation runner uses it to expose earlier results to later expressions.
type Fixed struct {
	Names   []string
	Results []cty.Value
}

// EvaluationNames implements Evaluator.
func (f Fixed) EvaluationNames() []string { return f.Names }

// EvaluationResults implements Evaluator.
func (f Fixed) EvaluationResults() []cty.Value { return f.Results }
