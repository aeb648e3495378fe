package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vk/jform/internal/app"
	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/handlers"
)

// Environment variables consulted for flag defaults.
const (
	EnvLogLevel    = "JFORM_LOG_LEVEL"
	EnvLogFormat   = "JFORM_LOG_FORMAT"
	EnvBotToken    = "JFORM_BOT_TOKEN"
	EnvTrackingURL = "JFORM_TRACKING_URL"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// options collects every flag shared by the commands.
type options struct {
	logLevel          string
	logFormat         string
	envFile           string
	set               []string
	stateURL          string
	trackers          []string
	trackingURL       string
	trackingNamespace string
	dispatcher        string
	botToken          string
	tokenSource       string
	tokenVariable     string
	httpTimeout       time.Duration
	port              int
}

// NewRootCommand builds the jform command tree. Command output goes to out,
// logs to errOut. The app's core modules are used when modules is empty.
func NewRootCommand(out, errOut io.Writer, loader config.Loader, modules ...handlers.Module) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "jform",
		Short: "Headless declarative form controller",
		Long: `jform loads a declarative form (HCL or HCL JSON files), evaluates its
reactive field model and submits it.

Examples:
  jform eval form.hcl --set amount=25
  jform submit form.hcl --set email='"a@b.io"' --tracker print
  jform state-url form.hcl --base https://example.com/donate --set recurring=true
  jform serve ./forms --port 8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.resolve(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", "info", "Logging level: debug, info, warn or error (env "+EnvLogLevel+").")
	pf.StringVar(&o.logFormat, "log-format", "text", "Log output format: text or json (env "+EnvLogFormat+").")
	pf.StringVar(&o.envFile, "env-file", "", "Load environment variables from this .env file first.")

	newApp := func(cmd *cobra.Command, paths []string) (*app.App, error) {
		cfg, err := app.NewConfig(app.Config{
			ConfigPaths:       paths,
			LogFormat:         o.logFormat,
			LogLevel:          o.logLevel,
			Trackers:          o.trackers,
			TrackingURL:       o.trackingURL,
			TrackingNamespace: o.trackingNamespace,
			Dispatcher:        o.dispatcher,
			HTTPTimeout:       o.httpTimeout,
			BotToken:          o.botToken,
			TokenSource:       o.tokenSource,
			TokenVariable:     o.tokenVariable,
			StateURL:          o.stateURL,
			Port:              o.port,
		})
		if err != nil {
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
		a, err := app.NewApp(cmd.Context(), out, errOut, cfg, loader, modules...)
		if err != nil {
			return nil, err
		}
		values, err := app.ParseAssignments(o.set)
		if err != nil {
			a.Close()
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
		if err := a.Apply(a.Context(), values); err != nil {
			a.Close()
			return nil, err
		}
		return a, nil
	}

	root.AddCommand(
		newEvalCommand(o, newApp),
		newSubmitCommand(o, newApp),
		newStateURLCommand(o, newApp),
		newServeCommand(o, newApp),
	)
	return root
}

type appFactory func(cmd *cobra.Command, paths []string) (*app.App, error)

func addFormFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.StringArrayVar(&o.set, "set", nil, "Set a field: name=value, value parsed as JSON (repeatable).")
	f.StringVar(&o.stateURL, "state-url", "", "Hydrate the form from a shared state URL.")
	f.StringSliceVar(&o.trackers, "tracker", nil, "Tracking sinks to enable: print, socketio (repeatable).")
	f.StringVar(&o.trackingURL, "tracking-url", "", "socket.io server URL for the socketio tracker (env "+EnvTrackingURL+").")
	f.StringVar(&o.trackingNamespace, "tracking-namespace", "/", "socket.io namespace for the socketio tracker.")
	f.StringVar(&o.dispatcher, "dispatcher", app.DefaultDispatcher, "Request dispatcher.")
	f.StringVar(&o.botToken, "bot-token", "", "Bot-verification token (env "+EnvBotToken+").")
	f.StringVar(&o.tokenSource, "token-source", "", "Token source used when no bot token is given: env.")
	f.StringVar(&o.tokenVariable, "token-variable", "", "Environment variable read by the env token source.")
	f.DurationVar(&o.httpTimeout, "http-timeout", app.DefaultHTTPTimeout, "Timeout for outbound requests.")
}

// resolve loads the env file and applies environment defaults to flags the
// user did not set.
func (o *options) resolve(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return &ExitError{Code: 2, Message: fmt.Sprintf("failed to load env file %s: %v", o.envFile, err)}
		}
		slog.Debug("Environment file loaded.", "path", o.envFile)
	}

	fromEnv := func(flag, env string, dst *string) {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			return
		}
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
	fromEnv("log-level", EnvLogLevel, &o.logLevel)
	fromEnv("log-format", EnvLogFormat, &o.logFormat)
	fromEnv("bot-token", EnvBotToken, &o.botToken)
	fromEnv("tracking-url", EnvTrackingURL, &o.trackingURL)

	o.logLevel = strings.ToLower(o.logLevel)
	o.logFormat = strings.ToLower(o.logFormat)
	return nil
}

func newEvalCommand(o *options, newApp appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval CONFIG...",
		Short: "Print field and group state as JSON",
		Args:  configArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.PrintJSON(a.Form().State())
		},
	}
	addFormFlags(cmd, o)
	return cmd
}

func newSubmitCommand(o *options, newApp appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit CONFIG...",
		Short: "Run the initialize request, then submit the form",
		Args:  configArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := a.Context()
			initialized, err := a.Initialize(ctx)
			if err != nil {
				return err
			}
			if initialized != nil && !initialized.OK {
				_ = a.PrintJSON(initialized)
				return &ExitError{Code: 1, Message: "initialize failed: " + initialized.Message}
			}

			res, err := a.Submit(ctx)
			if err != nil {
				return err
			}
			if err := a.PrintJSON(res); err != nil {
				return err
			}
			if !res.OK {
				return &ExitError{Code: 1, Message: res.Message}
			}
			return nil
		},
	}
	addFormFlags(cmd, o)
	return cmd
}

func newStateURLCommand(o *options, newApp appFactory) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "state-url CONFIG...",
		Short: "Print a URL carrying the current form state",
		Args:  configArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(base)
			if err != nil {
				return &ExitError{Code: 2, Message: fmt.Sprintf("invalid base url: %v", err)}
			}
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			shared, err := a.StateURL(u)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), shared.String())
			return err
		},
	}
	addFormFlags(cmd, o)
	cmd.Flags().StringVar(&base, "base", "", "Base URL the state is added to.")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func newServeCommand(o *options, newApp appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve CONFIG...",
		Short: "Serve the form over an HTTP API",
		Args:  configArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	addFormFlags(cmd, o)
	cmd.Flags().IntVar(&o.port, "port", 8080, "Port for the HTTP API.")
	return cmd
}

// configArgs requires at least one configuration path.
func configArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return &ExitError{Code: 2, Message: fmt.Sprintf("%s: at least one configuration path is required", cmd.CommandPath())}
	}
	return nil
}

// Execute runs the command tree with args. Failures come back as an
// *ExitError: code 2 for usage errors, 1 otherwise.
func Execute(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if strings.HasPrefix(err.Error(), "unknown command") || strings.HasPrefix(err.Error(), "required flag") {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return &ExitError{Code: 1, Message: err.Error()}
}
