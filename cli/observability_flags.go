package cli

import (
	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// metricsPushFlags wires a Prometheus push-gateway target onto a command, for
// batch runs (replay, bench) that finish before a scraper would ever see
// their metrics.
type metricsPushFlags struct {
	pushAddr     string
	pushJob      string
	pushUsername string
	pushPassword string
}

func (f *metricsPushFlags) setup(cmd *kingpin.CmdClause) {
	cmd.Flag("metrics-push-addr", "Address of a Prometheus push gateway to push final metrics to").Hidden().StringVar(&f.pushAddr)
	cmd.Flag("metrics-push-job", "Job label to push metrics under").Hidden().Default("allocsim").StringVar(&f.pushJob)
	cmd.Flag("metrics-push-username", "Username for push gateway basic auth").Hidden().StringVar(&f.pushUsername)
	cmd.Flag("metrics-push-password", "Password for push gateway basic auth").Hidden().StringVar(&f.pushPassword)
}

// pushOnce pushes the process's default Prometheus registry to the
// configured gateway, once. A no-op when no push address was configured.
func (f *metricsPushFlags) pushOnce() error {
	if f.pushAddr == "" {
		return nil
	}

	pusher := push.New(f.pushAddr, f.pushJob).Gatherer(prometheus.DefaultGatherer)

	if f.pushUsername != "" {
		pusher.BasicAuth(f.pushUsername, f.pushPassword)
	}

	log.Debugw("pushing metrics", "addr", f.pushAddr, "job", f.pushJob)

	if err := pusher.Push(); err != nil {
		return errors.Wrap(err, "pushing metrics to gateway")
	}

	return nil
}
