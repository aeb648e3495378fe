// Package http_client provides the net/http request dispatcher used to send
// submissions.
package http_client

import (
	"context"
	"net/http"
	"time"

	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/submit"
)

// DefaultTimeout applies when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Module implements the handlers.Module interface for this package.
type Module struct{}

// NewClient returns a pooled client with the given timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Close releases idle connections of a dispatcher's client.
func (d *Dispatcher) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// Register registers the http dispatcher.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterDispatcher("http", func(_ context.Context, s handlers.Settings) (submit.Dispatcher, error) {
		return New(NewClient(s.HTTPTimeout)), nil
	})
}
