package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type commandServeMetrics struct {
	listenAddr string

	app *App
}

func (c *commandServeMetrics) setup(app *App, parent commandParent) {
	c.app = app

	cmd := parent.Command("serve-metrics", "Serve an empty Prometheus metrics endpoint standalone, without running a replay")
	cmd.Flag("listen-addr", "Address to listen on").Default(":9090").StringVar(&c.listenAddr)
	cmd.Action(app.noArgsAction(c.run))
}

func (c *commandServeMetrics) run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: c.listenAddr, Handler: mux} //nolint:gosec

	log.Infow("serving metrics", "addr", c.listenAddr)

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}
