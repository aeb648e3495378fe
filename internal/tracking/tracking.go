// Package tracking defines the analytics events the form emits and a few
// in-process sinks for them.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/jform/internal/ctxlog"
)

// Event names.
const (
	SubmitSuccess              = "submitSuccess"
	SubmitValidationFailed     = "submitValidationFailed"
	SubmitTransportError       = "submitTransportError"
	ServerInvalidContactField  = "serverInvalidContactField"
	ServerUnauthenticated      = "serverUnauthenticated"
	ServerReCaptchaCheckFailed = "serverReCaptchaCheckFailed"
	ServerStaleForm            = "serverStaleForm"
	ServerSubmitFailed         = "serverSubmitFailed"
	InitializeSuccess          = "initializeSuccess"
	InitializeFailed           = "initializeFailed"
)

// Event is one tracking signal.
type Event struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Form   string         `json:"form"`
	Status int            `json:"status,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a new event with a random ID and the current time.
func NewEvent(name, form string, status int, data map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Name:   name,
		Form:   form,
		Status: status,
		Time:   time.Now().UTC(),
		Data:   data,
	}
}

// Tracker receives tracking events.
type Tracker interface {
	Track(ctx context.Context, ev Event) error
}

// Func adapts a function to the Tracker interface.
type Func func(ctx context.Context, ev Event) error

// Track implements Tracker.
func (f Func) Track(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Logger writes events to the context logger.
type Logger struct{}

// Track implements Tracker.
func (Logger) Track(ctx context.Context, ev Event) error {
	ctxlog.FromContext(ctx).Info("Tracking event.", "event", ev.Name, "id", ev.ID, "form", ev.Form, "status", ev.Status)
	return nil
}

// Multi fans an event out to every tracker. All trackers are called even if
// some fail.
type Multi []Tracker

// Track implements Tracker.
func (m Multi) Track(ctx context.Context, ev Event) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Track(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Track implements Tracker.
func (r *Recorder) Track(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}

// Count returns how often the named event was recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}
