package http_client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/submit"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// Dispatcher sends submit requests over HTTP.
type Dispatcher struct {
	client *http.Client
}

var _ submit.Dispatcher = (*Dispatcher)(nil)

// New returns a dispatcher using client, or a default pooled client when
// client is nil.
func New(client *http.Client) *Dispatcher {
	if client == nil {
		client = NewClient(0)
	}
	return &Dispatcher{client: client}
}

// Dispatch implements submit.Dispatcher. Any HTTP status is a response;
// only transport failures are errors.
func (d *Dispatcher) Dispatch(ctx context.Context, r *submit.Request) (*submit.Response, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", r.Method, "url", r.URL)

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &submit.Response{Status: resp.StatusCode, Header: resp.Header, Body: bodyBytes}, nil
}
