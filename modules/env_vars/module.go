// Package env_vars provides a bot-verification token source that reads the
// token from the environment on every request.
package env_vars

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/submit"
)

// DefaultVariable is read when no variable name is configured.
const DefaultVariable = "JFORM_BOT_TOKEN"

// Module implements the handlers.Module interface for this package.
type Module struct{}

// TokenSource reads a token from an environment variable.
type TokenSource struct {
	Variable string
	// Required makes a missing variable an error instead of an empty token.
	Required bool
}

// Token implements submit.TokenSource.
func (t TokenSource) Token(context.Context) (string, error) {
	name := t.Variable
	if name == "" {
		name = DefaultVariable
	}
	v, ok := os.LookupEnv(name)
	if !ok && t.Required {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}

// Register registers the env token source.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterTokenSource("env", func(_ context.Context, s handlers.Settings) (submit.TokenSource, error) {
		return TokenSource{Variable: s.TokenVariable}, nil
	})
}
