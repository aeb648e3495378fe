// Package urlstate writes field values into a shareable URL query parameter
// and reads them back.
package urlstate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/form"
)

// Entry is one field offered for encoding.
type Entry struct {
	Name     string
	Value    cty.Value
	Default  cty.Value
	Options  int
	Computed bool
}

// Entries lists the fields of a form snapshot in order.
func Entries(s form.State) []Entry {
	out := make([]Entry, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, Entry{Name: f.Name, Value: f.Value, Default: f.Default, Options: f.Options, Computed: f.Computed})
	}
	return out
}

// Allowed reports whether the mask lets name through. An empty allow list
// allows every name; deny always wins.
func Allowed(m config.Mask, name string) bool {
	if slices.Contains(m.Deny, name) {
		return false
	}
	return len(m.Allow) == 0 || slices.Contains(m.Allow, name)
}

type document struct {
	Model map[string]fieldValue `json:"model"`
}

type fieldValue struct {
	Value json.RawMessage `json:"value"`
}

// skip reports entries that are never written: computed fields, and
// booleans left at their default when the field has at most two options.
func skip(e Entry) bool {
	if e.Computed {
		return true
	}
	v := ctyconv.Normalize(e.Value)
	if v.IsNull() || v.Type() != cty.Bool {
		return false
	}
	return e.Options <= 2 && ctyconv.Same(v, ctyconv.Normalize(e.Default))
}

// Encode returns a copy of base with param set to the encoded entries. The
// parameter is removed when nothing is left to encode.
func Encode(base *url.URL, param string, entries []Entry, mask config.Mask) (*url.URL, error) {
	if param == "" {
		param = config.DefaultURLParam
	}
	doc := document{Model: map[string]fieldValue{}}
	for _, e := range entries {
		if skip(e) || !Allowed(mask, e.Name) {
			continue
		}
		raw, err := ctyconv.MarshalJSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", e.Name, err)
		}
		doc.Model[e.Name] = fieldValue{Value: raw}
	}

	u := *base
	q := u.Query()
	if len(doc.Model) == 0 {
		q.Del(param)
	} else {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode url state: %w", err)
		}
		q.Set(param, string(data))
	}
	u.RawQuery = q.Encode()
	return &u, nil
}

// Decode reads the values stored in param. Masked names are dropped. A URL
// without the parameter yields an empty map.
func Decode(u *url.URL, param string, mask config.Mask) (map[string]cty.Value, error) {
	if param == "" {
		param = config.DefaultURLParam
	}
	out := map[string]cty.Value{}
	raw := u.Query().Get(param)
	if raw == "" {
		return out, nil
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid url state in %s: %w", param, err)
	}
	for name, fv := range doc.Model {
		if !Allowed(mask, name) {
			continue
		}
		v, err := ctyconv.ParseJSON(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid url state for field %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
