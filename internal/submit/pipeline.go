// Package submit validates a form, dispatches its payload and interprets the
// server's answer.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/expr"
	"github.com/vk/jform/internal/form"
	"github.com/vk/jform/internal/scope"
	"github.com/vk/jform/internal/tracking"
)

// Form is what the pipeline needs from a connected controller.
type Form interface {
	Evaluator
	Model() *config.Model
	Collect(ctx context.Context) form.Collected
	UpdateRuntime(ctx context.Context, fn func(rt *scope.Runtime)) error
}

var _ Form = (*form.Controller)(nil)

// TokenSource supplies the bot-verification token for a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Result describes a finished request.
type Result struct {
	RequestID string
	Status    int
	Payload   cty.Value
	// Action and Navigation are empty when no action resolved.
	Action     string
	Navigation string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracker sets the tracking sink.
func WithTracker(t tracking.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithTokenSource sets the bot-verification token source.
func WithTokenSource(ts TokenSource) Option {
	return func(p *Pipeline) { p.tokens = ts }
}

// WithNavigator sets where resolved navigation targets are sent.
func WithNavigator(n Navigator) Option {
	return func(p *Pipeline) { p.navigator = n }
}

// WithRequestID replaces the request ID generator.
func WithRequestID(fn func() string) Option {
	return func(p *Pipeline) { p.requestID = fn }
}

// Pipeline runs submissions for one form. A submit while another is pending
// is rejected, never queued.
type Pipeline struct {
	form       Form
	dispatcher Dispatcher
	tracker    tracking.Tracker
	tokens     TokenSource
	navigator  Navigator
	requestID  func() string

	mu        sync.Mutex
	pending   bool
	submitted bool
}

// New creates a pipeline that sends requests through d.
func New(f Form, d Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		form:       f,
		dispatcher: d,
		tracker:    tracking.Logger{},
		tokens:     StaticToken(""),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pending reports whether a submission is in flight.
func (p *Pipeline) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Submitted reports whether a submission succeeded.
func (p *Pipeline) Submitted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

// Reset clears the submitted flag so the form can be sent again.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = false
}

func (p *Pipeline) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending {
		return ErrBusy
	}
	if p.submitted {
		return ErrSubmitted
	}
	p.pending = true
	return nil
}

func (p *Pipeline) release(ctx context.Context, succeeded bool) {
	p.mu.Lock()
	p.pending = false
	if succeeded {
		p.submitted = true
	}
	p.mu.Unlock()
	p.updateRuntime(ctx, func(rt *scope.Runtime) { rt.Pending = false })
}

// Submit validates the form, dispatches it and handles the response. The
// returned Result is non-nil whenever a response was received, including
// server rejections.
func (p *Pipeline) Submit(ctx context.Context) (*Result, error) {
	model := p.form.Model()
	ctx, logger := ctxlog.With(ctx, "form", model.Name)

	if err := p.acquire(); err != nil {
		logger.Debug("Submit rejected.", "error", err)
		return nil, err
	}
	succeeded := false
	defer func() { p.release(ctx, succeeded) }()

	p.updateRuntime(ctx, func(rt *scope.Runtime) { rt.Pending = true })

	logger.Debug("Validating form.")
	collected := p.form.Collect(ctx)
	if len(collected.Invalid) > 0 {
		err := &ValidationError{Message: model.Messages.Invalid, Fields: collected.Invalid}
		p.track(ctx, tracking.SubmitValidationFailed, 0, map[string]any{"fields": collected.Invalid})
		return nil, err
	}
	if err := p.checkConstraints(ctx, model); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			p.track(ctx, tracking.SubmitValidationFailed, 0, map[string]any{"message": verr.Message})
		}
		return nil, err
	}

	id := p.requestID()
	ctx, logger = ctxlog.With(ctx, "request_id", id)

	req, err := p.buildRequest(ctx, model, model.Target, collected.Value(), id)
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			return nil, err
		}
		terr := &TransportError{Message: model.Messages.Generic, Err: err}
		p.track(ctx, tracking.SubmitTransportError, 0, map[string]any{"requestId": id, "error": err.Error()})
		return nil, terr
	}

	logger.Debug("Dispatching submission.", "url", req.URL, "method", req.Method)
	resp, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		p.updateRuntime(ctx, func(rt *scope.Runtime) { rt.OnceSubmitted = true })
		p.track(ctx, tracking.SubmitTransportError, 0, map[string]any{"requestId": id, "error": err.Error()})
		return nil, &TransportError{Message: model.Messages.Generic, Err: err}
	}

	payload, err := ParsePayload(resp.Body, model.SecurityResponsePrefix, model.ResponseWrapper)
	if err != nil {
		p.updateRuntime(ctx, func(rt *scope.Runtime) { rt.OnceSubmitted = true })
		p.track(ctx, tracking.SubmitTransportError, resp.Status, map[string]any{"requestId": id, "error": err.Error()})
		return &Result{RequestID: id, Status: resp.Status, Payload: ctyconv.Null},
			&TransportError{Status: resp.Status, Message: model.Messages.Generic, Err: err}
	}

	p.updateRuntime(ctx, func(rt *scope.Runtime) {
		rt.OnceSubmitted = true
		rt.Response = payload
		rt.LatestResponse = payload
	})

	result := &Result{RequestID: id, Status: resp.Status, Payload: payload}
	if rej := Classify(resp, payload, model.Messages); rej != nil {
		logger.Info("Submission rejected by server.", "status", resp.Status, "kind", rej.Kind)
		p.track(ctx, rejectionEvent(rej.Kind), resp.Status, map[string]any{"requestId": id})
		return result, rej
	}

	succeeded = true
	logger.Info("Submission succeeded.", "status", resp.Status)
	p.track(ctx, tracking.SubmitSuccess, resp.Status, map[string]any{"requestId": id})

	if res, ok := ResolveActions(ctx, p.form, model.Actions); ok {
		result.Action, result.Navigation = res.Action, res.Target
		p.navigate(ctx, res)
	}
	return result, nil
}

// Initialize sends the optional initialize request. Its payload becomes the
// initial and latest response, then the initialize action is resolved. It
// returns nil, nil when no initialize target is configured.
func (p *Pipeline) Initialize(ctx context.Context) (*Result, error) {
	model := p.form.Model()
	if model.InitializeTarget == nil {
		return nil, nil
	}
	id := p.requestID()
	ctx, logger := ctxlog.With(ctx, "form", model.Name, "request_id", id)

	get := &config.Target{Method: "GET"}
	req, err := p.buildRequest(ctx, model, mergeTargets(get, model.InitializeTarget), cty.NilVal, id)
	if err != nil {
		return nil, err
	}

	logger.Debug("Dispatching initialize request.", "url", req.URL, "method", req.Method)
	resp, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		p.track(ctx, tracking.InitializeFailed, 0, map[string]any{"requestId": id, "error": err.Error()})
		return nil, &TransportError{Message: model.Messages.Generic, Err: err}
	}
	payload, err := ParsePayload(resp.Body, model.SecurityResponsePrefix, model.ResponseWrapper)
	if err != nil {
		p.track(ctx, tracking.InitializeFailed, resp.Status, map[string]any{"requestId": id, "error": err.Error()})
		return nil, &TransportError{Status: resp.Status, Message: model.Messages.Generic, Err: err}
	}

	p.updateRuntime(ctx, func(rt *scope.Runtime) {
		rt.InitialResponse = payload
		rt.LatestResponse = payload
	})

	result := &Result{RequestID: id, Status: resp.Status, Payload: payload}
	if !resp.OK() {
		p.track(ctx, tracking.InitializeFailed, resp.Status, map[string]any{"requestId": id})
		return result, Classify(resp, payload, model.Messages)
	}

	p.track(ctx, tracking.InitializeSuccess, resp.Status, map[string]any{"requestId": id})
	if res, ok := ResolveInitialize(ctx, p.form, model.Actions); ok {
		result.Action, result.Navigation = res.Action, res.Target
		p.navigate(ctx, res)
	}
	return result, nil
}

func (p *Pipeline) checkConstraints(ctx context.Context, model *config.Model) error {
	for i, c := range model.Constraints {
		v, err := p.form.Evaluate(ctx, c.Evaluation)
		if err != nil {
			return &ConstraintError{Index: i, Evaluation: c.Evaluation, Err: err}
		}
		if !expr.Truthy(v) {
			ctxlog.FromContext(ctx).Debug("Constraint failed.", "index", i, "description", c.Description)
			return &ValidationError{Message: c.Description}
		}
	}
	return nil
}

// buildRequest merges DefaultTarget, the configured target and the dynamic
// per-attempt data. A NilVal body leaves the configured body alone.
func (p *Pipeline) buildRequest(ctx context.Context, model *config.Model, target *config.Target, body cty.Value, id string) (*Request, error) {
	headers := map[string]any{RequestIDHeader: id}
	for k, v := range model.TagHeaders {
		headers[k] = v
	}
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain bot token: %w", err)
	}
	if token != "" && model.BotTokenHeader != "" {
		headers[model.BotTokenHeader] = token
	}

	options := map[string]any{"headers": headers}
	if body != cty.NilVal {
		options["body"] = body
	}
	return BuildRequest(Merge(DefaultTarget(), target.Tree(), map[string]any{"options": options}))
}

func mergeTargets(base, over *config.Target) *config.Target {
	out := *over
	if out.Method == "" {
		out.Method = base.Method
	}
	return &out
}

func rejectionEvent(k Kind) string {
	switch k {
	case KindInvalidContact:
		return tracking.ServerInvalidContactField
	case KindUnauthenticated:
		return tracking.ServerUnauthenticated
	case KindBotCheck:
		return tracking.ServerReCaptchaCheckFailed
	case KindStale:
		return tracking.ServerStaleForm
	default:
		return tracking.ServerSubmitFailed
	}
}

func (p *Pipeline) track(ctx context.Context, name string, status int, data map[string]any) {
	ev := tracking.NewEvent(name, p.form.Model().Name, status, data)
	if err := p.tracker.Track(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Tracking failed.", "event", name, "error", err)
	}
}

func (p *Pipeline) navigate(ctx context.Context, res Resolution) {
	logger := ctxlog.FromContext(ctx)
	if p.navigator == nil || res.Target == "" {
		logger.Debug("Action resolved.", "action", res.Action, "target", res.Target)
		return
	}
	if err := p.navigator.Navigate(ctx, res.Target); err != nil {
		logger.Warn("Navigation failed.", "action", res.Action, "target", res.Target, "error", err)
	}
}

func (p *Pipeline) updateRuntime(ctx context.Context, fn func(rt *scope.Runtime)) {
	if err := p.form.UpdateRuntime(ctx, fn); err != nil {
		ctxlog.FromContext(ctx).Warn("Runtime update failed.", "error", err)
	}
}
