package submit

import (
	"context"
	"net/url"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/expr"
)

const (
	// InitializeAction names the action resolved after Initialize.
	InitializeAction = "initialize"
	// FallbackCode marks the action used when no other action matched.
	FallbackCode = "fallback"
)

// Evaluator evaluates an expression against the form's full scope.
type Evaluator interface {
	Evaluate(ctx context.Context, source string) (cty.Value, error)
}

// Navigator performs post-submit navigation.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, target string) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, target string) error { return f(ctx, target) }

// Resolution is the outcome of action resolution.
type Resolution struct {
	Action string
	Target string
}

// ResolveActions walks actions in declaration order, skipping the initialize
// action. The first truthy indicator wins. The first fallback action is used
// when nothing matched. ok is false when there is nothing to navigate to.
func ResolveActions(ctx context.Context, ev Evaluator, actions []*config.Action) (Resolution, bool) {
	var fallback *config.Action
	for _, a := range actions {
		if a.Name == InitializeAction {
			continue
		}
		if strings.TrimSpace(a.Code) == FallbackCode {
			if fallback == nil {
				fallback = a
			}
			continue
		}
		if target, ok := indicate(ctx, ev, a); ok {
			return Resolution{Action: a.Name, Target: target}, true
		}
	}
	if fallback != nil {
		return Resolution{Action: fallback.Name, Target: fallback.Target}, true
	}
	return Resolution{}, false
}

// ResolveInitialize evaluates only the initialize action.
func ResolveInitialize(ctx context.Context, ev Evaluator, actions []*config.Action) (Resolution, bool) {
	for _, a := range actions {
		if a.Name != InitializeAction {
			continue
		}
		if target, ok := indicate(ctx, ev, a); ok {
			return Resolution{Action: a.Name, Target: target}, true
		}
		return Resolution{}, false
	}
	return Resolution{}, false
}

func indicate(ctx context.Context, ev Evaluator, a *config.Action) (string, bool) {
	v, err := ev.Evaluate(ctx, a.Code)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Action indicator failed.", "action", a.Name, "error", err)
		return "", false
	}
	if !expr.Truthy(v) {
		return "", false
	}
	if v.Type() != cty.String {
		return a.Target, true
	}
	return NavigationTarget(a.Target, v.AsString()), true
}

// NavigationTarget combines an action target with a string indicator. An
// absolute URL replaces the target; "true" keeps it; anything else is
// appended as a query string.
func NavigationTarget(target, indicator string) string {
	indicator = strings.TrimSpace(indicator)
	if indicator == "" || indicator == "true" {
		return target
	}
	if isAbsoluteURL(indicator) {
		return indicator
	}
	indicator = strings.TrimLeft(indicator, "?&")
	if target == "" {
		return indicator
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
		if strings.HasSuffix(target, "?") || strings.HasSuffix(target, "&") {
			sep = ""
		}
	}
	return target + sep + indicator
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}
