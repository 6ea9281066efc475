package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/YuminosukeSato/gridtrack/config"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// exportMetrics writes the gathered metrics to the configured textfile and
// pushes them to the Pushgateway. The process exits right after a run, so
// nothing would scrape an endpoint.
func exportMetrics(ctx context.Context, cfg config.MetricsConfig, g prometheus.Gatherer) error {
	var err error
	if cfg.Textfile != "" {
		if werr := prometheus.WriteToTextfile(cfg.Textfile, g); werr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(werr, "write metrics to %s", cfg.Textfile))
		}
	}
	if cfg.PushgatewayURL != "" {
		perr := push.New(cfg.PushgatewayURL, cfg.Job).Gatherer(g).PushContext(ctx)
		if perr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(perr, "push metrics to %s", cfg.PushgatewayURL))
		}
	}
	return err
}
