package form

import (
	"context"
	"time"

	"github.com/vk/jform/internal/expr"
)

// DefaultMaxDepth bounds how deep a single cascade may recurse.
const DefaultMaxDepth = 64

// Ticker is the pause between updating a field and visiting its dependents.
// It gives the host time to reconcile the writes the update made.
type Ticker interface {
	Tick(ctx context.Context) error
}

// TickerFunc adapts a function to the Ticker interface.
type TickerFunc func(ctx context.Context) error

// Tick implements Ticker.
func (f TickerFunc) Tick(ctx context.Context) error { return f(ctx) }

// Immediate returns a Ticker that only checks for cancellation.
func Immediate() Ticker {
	return TickerFunc(func(ctx context.Context) error { return ctx.Err() })
}

// Delay returns a Ticker that waits d, or until ctx is done.
func Delay(d time.Duration) Ticker {
	return TickerFunc(func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

// Option configures a Controller.
type Option func(*Controller)

// WithTick overrides the inter-field pause.
func WithTick(t Ticker) Option {
	return func(c *Controller) {
		if t != nil {
			c.tick = t
		}
	}
}

// WithMaxDepth overrides the cascade depth bound.
func WithMaxDepth(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithCompiler shares an expression compiler between controllers.
func WithCompiler(comp *expr.Compiler) Option {
	return func(c *Controller) {
		if comp != nil {
			c.compiler = comp
		}
	}
}

// WithClock overrides the clock used for the tools namespace.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
