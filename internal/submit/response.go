package submit

import (
	"bytes"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/expr"
)

// resultAttr is the payload attribute holding the server's verdict.
const resultAttr = "result"

// ParsePayload strips the security prefix, decodes the JSON body and unwraps
// the logical payload at the wrapper path.
func ParsePayload(body []byte, prefix string, wrapper config.ResponseWrapper) (cty.Value, error) {
	body = bytes.TrimSpace(body)
	if prefix != "" {
		body = bytes.TrimSpace(bytes.TrimPrefix(body, []byte(prefix)))
	}
	root, err := ctyconv.ParseJSON(body)
	if err != nil {
		return cty.NilVal, err
	}
	if wrapper.Path == "" {
		return root, nil
	}
	v, ok := ctyconv.Path(root, wrapper.Path)
	if !ok {
		if wrapper.Optional {
			return root, nil
		}
		return cty.NilVal, fmt.Errorf("response wrapper path %q not found", wrapper.Path)
	}
	return v, nil
}

// Accepted reports the payload's result flag. Objects and maps are accepted
// when their result attribute is truthy; any other payload counts by its own
// truthiness.
func Accepted(payload cty.Value) bool {
	payload = ctyconv.Normalize(payload)
	if payload.IsNull() {
		return false
	}
	ty := payload.Type()
	if ty.IsObjectType() || ty.IsMapType() {
		v, ok := ctyconv.Path(payload, resultAttr)
		return ok && expr.Truthy(v)
	}
	return expr.Truthy(payload)
}

func isAuthStatus(status int) bool {
	return status == 401 || status == 403 || status == 407
}

// Classify turns a parsed response into a rejection, or nil on success.
func Classify(resp *Response, payload cty.Value, msgs config.Messages) *ServerRejection {
	accepted := Accepted(payload)
	rej := &ServerRejection{Status: resp.Status, Payload: payload}

	switch {
	case isAuthStatus(resp.Status) && accepted:
		rej.Kind, rej.Message, rej.AuthRequired = KindUnauthenticated, msgs.Unauthenticated, true
	case resp.OK() && accepted:
		return nil
	case resp.Status == 406:
		rej.Kind, rej.Message = KindInvalidContact, msgs.InvalidContact
	case resp.Status == 401 || resp.Status == 403:
		rej.Kind, rej.Message = KindUnauthenticated, msgs.Unauthenticated
	case resp.Status == 420:
		rej.Kind, rej.Message = KindBotCheck, msgs.BotCheck
	case resp.Status == 428:
		rej.Kind, rej.Message = KindStale, msgs.Stale
	default:
		rej.Kind, rej.Message = KindGeneric, msgs.Generic
	}
	return rej
}
