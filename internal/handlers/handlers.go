// Package handlers is the plugin registry modules register their tracking
// sinks, request dispatchers and token sources with.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/vk/jform/internal/submit"
	"github.com/vk/jform/internal/tracking"
)

// Module is implemented by every compiled-in module.
type Module interface {
	Register(h *Handlers)
}

// Settings carry the app-level options factories may need.
type Settings struct {
	// Out receives human-readable output.
	Out                io.Writer
	TrackingURL        string
	TrackingNamespace  string
	HTTPTimeout        time.Duration
	InsecureSkipVerify bool
	// TokenVariable names the environment variable holding the bot token.
	TokenVariable string
}

// TrackerFactory builds a tracker. Trackers that hold connections should
// implement io.Closer.
type TrackerFactory func(ctx context.Context, s Settings) (tracking.Tracker, error)

// DispatcherFactory builds a request dispatcher.
type DispatcherFactory func(ctx context.Context, s Settings) (submit.Dispatcher, error)

// TokenSourceFactory builds a bot-verification token source.
type TokenSourceFactory func(ctx context.Context, s Settings) (submit.TokenSource, error)

// Handlers holds all registered factories by name.
type Handlers struct {
	trackers     map[string]TrackerFactory
	dispatchers  map[string]DispatcherFactory
	tokenSources map[string]TokenSourceFactory
}

// New creates an empty registry.
func New() *Handlers {
	return &Handlers{
		trackers:     make(map[string]TrackerFactory),
		dispatchers:  make(map[string]DispatcherFactory),
		tokenSources: make(map[string]TokenSourceFactory),
	}
}

// Register lets every module add its factories.
func (h *Handlers) Register(modules ...Module) *Handlers {
	for _, m := range modules {
		m.Register(h)
	}
	return h
}

// RegisterTracker registers a tracker factory. Duplicate names panic.
func (h *Handlers) RegisterTracker(name string, fn TrackerFactory) {
	if _, exists := h.trackers[name]; exists {
		panic(fmt.Sprintf("tracker with name '%s' already registered", name))
	}
	slog.Debug("Registering tracker.", "name", name)
	h.trackers[name] = fn
}

// RegisterDispatcher registers a dispatcher factory. Duplicate names panic.
func (h *Handlers) RegisterDispatcher(name string, fn DispatcherFactory) {
	if _, exists := h.dispatchers[name]; exists {
		panic(fmt.Sprintf("dispatcher with name '%s' already registered", name))
	}
	slog.Debug("Registering dispatcher.", "name", name)
	h.dispatchers[name] = fn
}

// RegisterTokenSource registers a token source factory. Duplicate names panic.
func (h *Handlers) RegisterTokenSource(name string, fn TokenSourceFactory) {
	if _, exists := h.tokenSources[name]; exists {
		panic(fmt.Sprintf("token source with name '%s' already registered", name))
	}
	slog.Debug("Registering token source.", "name", name)
	h.tokenSources[name] = fn
}

// Trackers builds the named trackers and fans them out through one
// tracking.Multi. Closers collects the trackers that need closing.
func (h *Handlers) Trackers(ctx context.Context, s Settings, names ...string) (tracking.Multi, []io.Closer, error) {
	var (
		out     tracking.Multi
		closers []io.Closer
	)
	for _, name := range names {
		fn, ok := h.trackers[name]
		if !ok {
			closeAll(closers)
			return nil, nil, fmt.Errorf("unknown tracker %q (available: %v)", name, sortedKeys(h.trackers))
		}
		t, err := fn(ctx, s)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("failed to create tracker %q: %w", name, err)
		}
		if c, ok := t.(io.Closer); ok {
			closers = append(closers, c)
		}
		out = append(out, t)
	}
	return out, closers, nil
}

// Dispatcher builds the named dispatcher.
func (h *Handlers) Dispatcher(ctx context.Context, s Settings, name string) (submit.Dispatcher, error) {
	fn, ok := h.dispatchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown dispatcher %q (available: %v)", name, sortedKeys(h.dispatchers))
	}
	return fn(ctx, s)
}

// TokenSource builds the named token source.
func (h *Handlers) TokenSource(ctx context.Context, s Settings, name string) (submit.TokenSource, error) {
	fn, ok := h.tokenSources[name]
	if !ok {
		return nil, fmt.Errorf("unknown token source %q (available: %v)", name, sortedKeys(h.tokenSources))
	}
	return fn(ctx, s)
}

// TrackerNames lists the registered tracker names.
func (h *Handlers) TrackerNames() []string { return sortedKeys(h.trackers) }

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
