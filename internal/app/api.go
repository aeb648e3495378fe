package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/form"
	"github.com/vk/jform/internal/submit"
)

// Handler returns the HTTP API:
//
//	GET  /health     liveness
//	GET  /state      form state as JSON
//	POST /change     {"name": value, ...} applied in field order
//	POST /submit     runs the submission pipeline
//	GET  /state-url  ?base=URL, the shareable URL for the current state
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /state", a.stateHandler)
	mux.HandleFunc("POST /change", a.changeHandler)
	mux.HandleFunc("POST /submit", a.submitHandler)
	mux.HandleFunc("GET /state-url", a.stateURLHandler)
	return a.withRequestLogger(mux)
}

// withRequestLogger stores a per-request logger in the request context.
func (a *App) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := ctxlog.WithLogger(r.Context(), a.logger)
		ctx, logger := ctxlog.With(ctx, "http_request_id", id, "method", r.Method, "path", r.URL.Path)
		logger.Debug("API request.")
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *App) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r, w, http.StatusOK, a.form.State())
}

func (a *App) changeHandler(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(r, w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	values := make(map[string]cty.Value, len(raw))
	for name, msg := range raw {
		v, err := ctyconv.ParseJSON(msg)
		if err != nil {
			writeError(r, w, http.StatusBadRequest, "invalid value for "+name+": "+err.Error())
			return
		}
		values[name] = v
	}
	if err := a.Apply(r.Context(), values); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, form.ErrUnknownField) {
			status = http.StatusUnprocessableEntity
		}
		writeError(r, w, status, err.Error())
		return
	}
	writeJSON(r, w, http.StatusOK, a.form.State())
}

func (a *App) submitHandler(w http.ResponseWriter, r *http.Request) {
	out, err := a.Submit(r.Context())
	if err != nil {
		writeError(r, w, submitErrorStatus(err), err.Error())
		return
	}
	status := http.StatusOK
	if !out.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(r, w, status, out)
}

func (a *App) stateURLHandler(w http.ResponseWriter, r *http.Request) {
	base, err := url.Parse(r.URL.Query().Get("base"))
	if err != nil {
		writeError(r, w, http.StatusBadRequest, "invalid base url: "+err.Error())
		return
	}
	u, err := a.StateURL(base)
	if err != nil {
		writeError(r, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(r, w, http.StatusOK, map[string]string{"url": u.String()})
}

func writeJSON(r *http.Request, w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("Failed to encode response.", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(r *http.Request, w http.ResponseWriter, status int, msg string) {
	ctxlog.FromContext(r.Context()).Debug("API request failed.", "status", status, "error", msg)
	writeJSON(r, w, status, map[string]string{"error": msg})
}

func submitErrorStatus(err error) int {
	var cerr *submit.ConstraintError
	switch {
	case errors.Is(err, submit.ErrBusy), errors.Is(err, submit.ErrSubmitted):
		return http.StatusConflict
	case errors.As(err, &cerr), errors.Is(err, submit.ErrNoTarget):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
