package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/form"
	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/submit"
	"github.com/vk/jform/internal/tracking"
	"github.com/vk/jform/internal/urlstate"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	model      *config.Model
	handlers   *handlers.Handlers
	form       *form.Controller
	pipeline   *submit.Pipeline
	closers    []io.Closer
	httpServer *http.Server

	navMu     sync.Mutex
	navigated []string
}

// NewApp loads the form configuration, registers the modules (coreModules
// when none are given), builds the plugins and connects the form. Output
// goes to outW; logs go to logW.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, loader config.Loader, modules ...handlers.Module) (*App, error) {
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "form", model.Name, "fields", len(model.Fields))

	if len(modules) == 0 {
		modules = coreModules
	}
	h := handlers.New().Register(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	a := &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   cfg,
		model:    model,
		handlers: h,
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) settings() handlers.Settings {
	return handlers.Settings{
		Out:               a.outW,
		TrackingURL:       a.config.TrackingURL,
		TrackingNamespace: a.config.TrackingNamespace,
		HTTPTimeout:       a.config.HTTPTimeout,
		TokenVariable:     a.config.TokenVariable,
	}
}

func (a *App) wire(ctx context.Context) error {
	s := a.settings()

	trackers, closers, err := a.handlers.Trackers(ctx, s, a.config.Trackers...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closers...)

	dispatcher, err := a.handlers.Dispatcher(ctx, s, a.config.Dispatcher)
	if err != nil {
		return err
	}
	if c, ok := dispatcher.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var tokens submit.TokenSource = submit.StaticToken(a.config.BotToken)
	if a.config.BotToken == "" && a.config.TokenSource != "" {
		if tokens, err = a.handlers.TokenSource(ctx, s, a.config.TokenSource); err != nil {
			return err
		}
	}

	a.form = form.New(a.model)
	if a.config.StateURL != "" {
		u, err := url.Parse(a.config.StateURL)
		if err != nil {
			return fmt.Errorf("invalid state url: %w", err)
		}
		values, err := urlstate.Decode(u, a.model.URLParam, a.model.URLModelMask)
		if err != nil {
			return err
		}
		if err := a.form.Hydrate(ctx, values); err != nil {
			return err
		}
		a.logger.Debug("Form hydrated from url.", "fields", len(values))
	}
	if err := a.form.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect form: %w", err)
	}

	a.pipeline = submit.New(a.form, dispatcher,
		submit.WithTracker(append(tracking.Multi{tracking.Logger{}}, trackers...)),
		submit.WithTokenSource(tokens),
		submit.WithNavigator(submit.NavigatorFunc(a.navigate)),
	)
	return nil
}

func (a *App) navigate(ctx context.Context, target string) error {
	ctxlog.FromContext(ctx).Info("Navigating.", "target", target)
	a.navMu.Lock()
	defer a.navMu.Unlock()
	a.navigated = append(a.navigated, target)
	return nil
}

// Navigations lists every navigation target resolved so far.
func (a *App) Navigations() []string {
	a.navMu.Lock()
	defer a.navMu.Unlock()
	return append([]string(nil), a.navigated...)
}

// Context returns the app context carrying its logger.
func (a *App) Context() context.Context { return a.ctx }

// Model returns the loaded form model.
func (a *App) Model() *config.Model { return a.model }

// Form returns the connected controller.
func (a *App) Form() *form.Controller { return a.form }

// Pipeline returns the submission pipeline.
func (a *App) Pipeline() *submit.Pipeline { return a.pipeline }

// Apply changes fields in model order, then the remaining names in sorted
// order.
func (a *App) Apply(ctx context.Context, values map[string]cty.Value) error {
	for _, name := range orderedNames(a.model, values) {
		if err := a.form.Change(ctx, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// StateURL returns base with the current form state encoded into it.
func (a *App) StateURL(base *url.URL) (*url.URL, error) {
	return urlstate.Encode(base, a.model.URLParam, urlstate.Entries(a.form.State()), a.model.URLModelMask)
}

// SubmitOutcome is the printable result of Submit.
type SubmitOutcome struct {
	OK         bool     `json:"ok"`
	Status     int      `json:"status,omitempty"`
	RequestID  string   `json:"requestId,omitempty"`
	Action     string   `json:"action,omitempty"`
	Navigation string   `json:"navigation,omitempty"`
	Message    string   `json:"message,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Payload    any      `json:"payload,omitempty"`
}

// Submit runs the pipeline and folds the outcome into a SubmitOutcome.
// Validation failures and server rejections are outcomes, not errors.
func (a *App) Submit(ctx context.Context) (*SubmitOutcome, error) {
	res, err := a.pipeline.Submit(ctx)
	return outcome(res, err)
}

// Initialize runs the optional initialize request.
func (a *App) Initialize(ctx context.Context) (*SubmitOutcome, error) {
	res, err := a.pipeline.Initialize(ctx)
	if res == nil && err == nil {
		return nil, nil
	}
	return outcome(res, err)
}

func outcome(res *submit.Result, err error) (*SubmitOutcome, error) {
	out := &SubmitOutcome{}
	if res != nil {
		out.Status, out.RequestID, out.Action, out.Navigation = res.Status, res.RequestID, res.Action, res.Navigation
		if res.Payload != cty.NilVal {
			native, nerr := ctyconv.ToNative(res.Payload)
			if nerr != nil {
				return nil, nerr
			}
			out.Payload = native
		}
	}

	var (
		verr *submit.ValidationError
		rej  *submit.ServerRejection
		terr *submit.TransportError
	)
	switch {
	case err == nil:
		out.OK = true
	case errors.As(err, &verr):
		out.Message, out.Kind, out.Fields = verr.Message, "validation", verr.Fields
	case errors.As(err, &rej):
		out.Message, out.Kind = rej.Message, string(rej.Kind)
	case errors.As(err, &terr):
		out.Message, out.Kind = terr.Message, "transport"
	default:
		return nil, err
	}
	return out, nil
}

// Close releases the form subscriptions, plugin connections and the API
// server.
func (a *App) Close() {
	if a.httpServer != nil {
		_ = a.closeServer()
	}
	if a.form != nil {
		a.form.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close plugin.", "error", err)
		}
	}
	a.closers = nil
}
