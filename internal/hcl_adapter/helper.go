package hcl_adapter

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctxlog"
)

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder, so only a range that spans bytes counts.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checked optional attribute.", "attribute", attrName, "hcl_range", r.String(), "is_defined", defined)
	return defined
}

// literalValue evaluates an optional attribute without variables. The bool
// is false when the attribute was omitted or is null. In JSON syntax gohcl
// fills an omitted attribute with a static null whose range is not empty, so
// the range check alone cannot tell it from a written one.
func literalValue(ctx context.Context, expr hcl.Expression, attrName string) (cty.Value, bool, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return cty.NilVal, false, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, false, diags
	}
	if val.IsNull() {
		ctxlog.FromContext(ctx).Debug("Optional attribute is null; treating it as omitted.", "attribute", attrName)
		return cty.NilVal, false, nil
	}
	return val, true, nil
}
