// Package print provides a tracker that writes one line per event.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/tracking"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Tracker prints events to a writer.
type Tracker struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTracker returns a tracker writing to out, or stdout when out is nil.
func NewTracker(out io.Writer) *Tracker {
	if out == nil {
		out = os.Stdout
	}
	return &Tracker{out: out}
}

// Track implements tracking.Tracker.
func (t *Tracker) Track(ctx context.Context, ev tracking.Event) error {
	ctxlog.FromContext(ctx).Debug("Printing event.", "event", ev.Name)

	// Sort keys for consistent output
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.out, "event %s form=%q status=%d", ev.Name, ev.Form, ev.Status); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(t.out, " %s=%q", k, fmt.Sprint(ev.Data[k])); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(t.out)
	return err
}

// Register registers the print tracker.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterTracker("print", func(_ context.Context, s handlers.Settings) (tracking.Tracker, error) {
		return NewTracker(s.Out), nil
	})
}
