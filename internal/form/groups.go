package form

import (
	"context"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/expr"
	"github.com/vk/jform/internal/scope"
)

// GroupState is the computed visibility of one group.
type GroupState struct {
	Name     string   `json:"name"`
	Visible  bool     `json:"visible"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children"`
}

type group struct {
	name             string
	children         []string
	parent           string
	showIfExpression string
	showIf           *expr.Compiled
	visible          bool
}

// compileGroups compiles group predicates against the full scope and records
// the direct parent of every nested group. A group listed by several groups
// belongs to the first one, so it is rendered exactly once.
func (c *Controller) compileGroups(ctx context.Context) {
	names := scope.Names(c.evalNames, c.registry.Names())
	c.groups = make([]*group, 0, len(c.model.Groups))

	byName := make(map[string]*group, len(c.model.Groups))
	for _, g := range c.model.Groups {
		grp := &group{
			name:             g.Name,
			children:         append([]string(nil), g.Children...),
			showIfExpression: g.ShowIf,
			showIf:           c.compile(ctx, "group "+g.Name+".show_if", g.ShowIf, names),
		}
		c.groups = append(c.groups, grp)
		byName[g.Name] = grp
	}
	for _, grp := range c.groups {
		for _, child := range grp.children {
			if nested, ok := byName[child]; ok && nested.parent == "" && nested != grp {
				nested.parent = grp.name
			}
		}
	}
}

// recomputeGroups refreshes the visibility of every group. It runs once per
// top-level cascade.
func (c *Controller) recomputeGroups(ctx context.Context) {
	if len(c.groups) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)
	sc := c.fullScope(ctx)

	byName := make(map[string]*group, len(c.groups))
	for _, g := range c.groups {
		byName[g.name] = g
	}

	done := make(map[string]bool, len(c.groups))
	visiting := make(map[string]bool)

	var visit func(g *group) bool
	visit = func(g *group) bool {
		if done[g.name] {
			return g.visible
		}
		if visiting[g.name] {
			// Cyclic nesting: treat the back edge as hidden.
			return false
		}
		visiting[g.name] = true
		defer delete(visiting, g.name)

		switch {
		case g.showIfExpression != "":
			g.visible = false
			if g.showIf != nil {
				v, err := g.showIf.Call(sc.Values...)
				if err != nil {
					logger.Debug("Group show_if failed; hiding group.", "group", g.name, "error", err)
				} else {
					g.visible = expr.Truthy(v)
				}
			}
		case len(g.children) == 0:
			g.visible = true
		default:
			g.visible = false
			for _, child := range g.children {
				if nested, ok := byName[child]; ok {
					if visit(nested) {
						g.visible = true
					}
					continue
				}
				if f, ok := c.registry.Get(child); ok && f.IsShown() {
					g.visible = true
				}
			}
		}
		done[g.name] = true
		return g.visible
	}

	for _, g := range c.groups {
		visit(g)
	}
}

// GroupStates returns the visibility of every group in declaration order.
func (c *Controller) GroupStates() []GroupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupStates()
}

func (c *Controller) groupStates() []GroupState {
	out := make([]GroupState, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, GroupState{
			Name:     g.name,
			Visible:  g.visible,
			Parent:   g.parent,
			Children: append([]string{}, g.children...),
		})
	}
	return out
}
