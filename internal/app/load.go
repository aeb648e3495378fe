package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctyconv"
)

// ParseAssignments parses name=value pairs. Values are read as JSON; a value
// that is not valid JSON is taken as a plain string.
func ParseAssignments(pairs []string) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected name=value", pair)
		}
		v, err := ctyconv.ParseJSON([]byte(raw))
		if err != nil {
			v = cty.StringVal(raw)
		}
		out[name] = v
	}
	return out, nil
}

// orderedNames returns the keys of values: configured fields first in
// declaration order, then any other names sorted.
func orderedNames(m *config.Model, values map[string]cty.Value) []string {
	names := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, f := range m.Fields {
		if _, ok := values[f.Name]; ok {
			names = append(names, f.Name)
			seen[f.Name] = true
		}
	}
	var rest []string
	for name := range values {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
