// Package socketio provides a tracker that emits events on a socket.io
// namespace over a persistent websocket connection.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/tracking"
)

// DefaultConnectTimeout bounds the initial connection.
const DefaultConnectTimeout = 15 * time.Second

// EventName is the socket.io event every tracking event is emitted as.
const EventName = "track"

// ErrNotConnected is returned by Track while the socket is disconnected.
var ErrNotConnected = errors.New("socket.io tracker is not connected")

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Options configure a Tracker.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// Tracker emits events to a socket.io server.
type Tracker struct {
	io        *socket.Socket
	connected atomic.Bool
}

// Dial connects to the server and waits for the namespace to be joined.
func Dial(ctx context.Context, o Options) (*Tracker, error) {
	logger := ctxlog.FromContext(ctx).With("tracker", "socketio", "url", o.URL, "namespace", o.Namespace)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if o.Namespace == "" {
		o.Namespace = "/"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	t := &Tracker{io: manager.Socket(o.Namespace, opts)}

	connectChan := make(chan error, 1)
	t.io.On(types.EventName("connect"), func(...any) {
		t.connected.Store(true)
		logger.Info("Successfully connected", "sid", t.io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	t.io.On(types.EventName("disconnect"), func(...any) {
		t.connected.Store(false)
		logger.Debug("Socket disconnected")
	})
	t.io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	logger.Debug("Initiating connection...")
	t.io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			t.io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return t, nil
	case <-ctx.Done():
		t.io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(o.ConnectTimeout):
		t.io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", o.ConnectTimeout)
	}
}

// Payload is the emitted shape of an event.
func Payload(ev tracking.Event) map[string]any {
	p := map[string]any{
		"id":   ev.ID,
		"name": ev.Name,
		"form": ev.Form,
		"time": ev.Time.Format(time.RFC3339Nano),
	}
	if ev.Status != 0 {
		p["status"] = ev.Status
	}
	if len(ev.Data) > 0 {
		p["data"] = ev.Data
	}
	return p
}

// Track implements tracking.Tracker.
func (t *Tracker) Track(ctx context.Context, ev tracking.Event) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	ctxlog.FromContext(ctx).Debug("Emitting event", "event", ev.Name, "sid", t.io.Id())
	t.io.Emit(EventName, Payload(ev))
	return nil
}

// Close disconnects the socket.
func (t *Tracker) Close() error {
	t.connected.Store(false)
	t.io.Disconnect()
	return nil
}

// Register registers the socketio tracker.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterTracker("socketio", func(ctx context.Context, s handlers.Settings) (tracking.Tracker, error) {
		if s.TrackingURL == "" {
			return nil, errors.New("socketio tracker needs a tracking url")
		}
		t, err := Dial(ctx, Options{
			URL:                s.TrackingURL,
			Namespace:          s.TrackingNamespace,
			InsecureSkipVerify: s.InsecureSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
