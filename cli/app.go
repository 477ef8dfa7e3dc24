// Package cli implements the allocsim command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpualloc/allocsim/internal/metrics"
	"github.com/gpualloc/allocsim/repo/logging"
)

var log = logging.Module("allocsim/cli")

//nolint:gochecknoglobals
var (
	noteColor  = color.New(color.FgHiCyan)
	errorColor = color.New(color.FgHiRed)
)

type textOutput struct {
	stdoutWriter io.Writer
	stderrWriter io.Writer
}

func (o *textOutput) printStdout(msg string, args ...interface{}) {
	noteColor.Fprintf(o.stdoutWriter, msg, args...) //nolint:errcheck
}

func (o *textOutput) printStderr(msg string, args ...interface{}) {
	errorColor.Fprintf(o.stderrWriter, msg, args...) //nolint:errcheck
}

// App holds per-invocation flags and wires up allocsim's subcommands.
type App struct {
	jsonLog bool

	metricsListenAddr string

	replay      commandReplay
	bench       commandBench
	serveMetric commandServeMetrics

	out textOutput

	rootctx context.Context //nolint:containedctx
	osExit  func(int)
}

// NewApp returns a ready-to-attach App.
func NewApp() *App {
	return &App{
		rootctx: context.Background(),
		osExit:  os.Exit,
		out: textOutput{
			stdoutWriter: colorable.NewColorableStdout(),
			stderrWriter: colorable.NewColorableStderr(),
		},
	}
}

// Attach wires every subcommand onto app.
func (c *App) Attach(app *kingpin.Application) {
	app.Flag("json-log", "Emit logs as JSON instead of colorized console output").BoolVar(&c.jsonLog)
	app.Flag("metrics-listen-addr", "Expose Prometheus metrics on host:port while running").StringVar(&c.metricsListenAddr)

	app.PreAction(func(*kingpin.ParseContext) error {
		logging.SetJSONFormat(c.jsonLog)
		return nil
	})

	c.replay.setup(c, app)
	c.bench.setup(c, app)
	c.serveMetric.setup(c, app)
}

func (c *App) registry() *metrics.Registry {
	if c.metricsListenAddr == "" && c.replay.push.pushAddr == "" && c.bench.push.pushAddr == "" {
		return nil
	}

	return metrics.NewRegistry()
}

func (c *App) rootContext() context.Context {
	return c.rootctx
}

type action func(ctx context.Context) error

// noArgsAction runs act with the app's root context, serving the process's
// Prometheus registry on metricsListenAddr for the action's duration when the
// flag was set.
func (c *App) noArgsAction(act action) func(*kingpin.ParseContext) error {
	return func(*kingpin.ParseContext) error {
		stop, err := c.startMetricsServer()
		if err != nil {
			return err
		}
		defer stop()

		return act(c.rootContext())
	}
}

// startMetricsServer serves /metrics on metricsListenAddr for as long as the
// current command runs, when the flag is set. The returned stop func is
// always safe to call and always nil-safe when no listener was started.
func (c *App) startMetricsServer() (func(), error) {
	if c.metricsListenAddr == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: c.metricsListenAddr, Handler: mux} //nolint:gosec

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infow("serving metrics", "addr", c.metricsListenAddr)

	return func() {
		if err := srv.Close(); err != nil {
			log.Warnw("closing metrics server", "error", err)
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server exited with error", "error", err)
		}
	}, nil
}

// commandParent is implemented by *kingpin.Application and *kingpin.CmdClause,
// letting each command's setup() attach to either the app or a parent command.
type commandParent interface {
	Command(name, help string) *kingpin.CmdClause
}
