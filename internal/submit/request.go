package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctyconv"
)

// RequestIDHeader carries the per-attempt request ID.
const RequestIDHeader = "X-Request-Id"

// Request is one outbound call resolved from the merged target tree.
type Request struct {
	URL         string
	Method      string
	Headers     map[string]string
	Body        []byte
	Mode        string
	Credentials string
}

// Response is what a Dispatcher got back.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Dispatcher performs a request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// DefaultTarget is the base every request tree is merged onto.
func DefaultTarget() map[string]any {
	return map[string]any{
		"options": map[string]any{
			"method": http.MethodPost,
			"headers": map[string]any{
				"Accept":       "application/json",
				"Content-Type": "application/json",
			},
			"credentials": "same-origin",
		},
	}
}

// Merge deep merges trees left to right. Nested maps are merged key by key;
// any other value in a later tree replaces the earlier one. Inputs are not
// modified.
func Merge(trees ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, t := range trees {
		mergeInto(out, t)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			existing, ok := dst[k].(map[string]any)
			if !ok {
				existing = map[string]any{}
			}
			merged := make(map[string]any, len(existing)+len(sub))
			mergeInto(merged, existing)
			mergeInto(merged, sub)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// BuildRequest turns a merged tree into a Request. Non-string bodies are
// encoded as JSON.
func BuildRequest(tree map[string]any) (*Request, error) {
	req := &Request{Headers: map[string]string{}}
	req.URL, _ = tree["url"].(string)
	if req.URL == "" {
		return nil, ErrNoTarget
	}

	options, _ := tree["options"].(map[string]any)
	req.Method, _ = options["method"].(string)
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	req.Mode, _ = options["mode"].(string)
	req.Credentials, _ = options["credentials"].(string)

	if headers, ok := options["headers"].(map[string]any); ok {
		keys := make([]string, 0, len(headers))
		for k := range headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := headers[k].(type) {
			case nil:
			case string:
				req.Headers[k] = v
			default:
				req.Headers[k] = fmt.Sprint(v)
			}
		}
	}

	body, err := encodeBody(options["body"])
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req.Body = body
	return req, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case cty.Value:
		b = ctyconv.Normalize(b)
		if b.IsNull() {
			return nil, nil
		}
		if b.Type() == cty.String && b.IsKnown() {
			return []byte(b.AsString()), nil
		}
		return ctyconv.MarshalJSON(b)
	default:
		return json.Marshal(b)
	}
}
