// Command gridtrack runs one hyperparameter search experiment: it loads the
// configured dataset, grid-searches a scaled random forest, and records the
// scores and fitted model in the tracking store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/gridtrack/config"
	"github.com/YuminosukeSato/gridtrack/experiment"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
	"github.com/YuminosukeSato/gridtrack/pkg/telemetry"
	"github.com/YuminosukeSato/gridtrack/tracking"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:           "gridtrack",
		Short:         "Grid-search a scaled random forest and track the run",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, logLevel)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML file overlaid on the built-in defaults")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")
	return cmd
}

func run(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridtrack: %v\n", err)
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := log.SetupLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "gridtrack: %v\n", err)
		return err
	}
	logger := log.GetLogger()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Exporter:     cfg.Telemetry.TraceExporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Writer:       os.Stderr,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", log.ErrAttrKey, err)
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Trace shutdown failed", log.ErrAttrKey, err)
		}
	}()

	client, err := tracking.Open(ctx, cfg.Tracking.StorePath, cfg.Tracking.ArtifactRoot, cfg.Tracking.CredentialsFile)
	if err != nil {
		logger.Error("Failed to open tracking store", log.ErrAttrKey, err)
		return err
	}
	defer client.Close()

	// 失敗した実行のfit数も残したいので結果に関わらず送る
	defer func() {
		if err := exportMetrics(context.WithoutCancel(ctx), cfg.Metrics, prometheus.DefaultGatherer); err != nil {
			logger.Warn("Metrics export failed", log.ErrAttrKey, err)
		}
	}()

	rep, err := experiment.NewRunner(cfg, client).Run(ctx)
	if err != nil {
		logger.Error("Run failed", log.ErrAttrKey, err)
		return err
	}

	logger.Info("Run complete",
		log.RunIDKey, rep.RunID,
		log.ModelVersionKey, rep.ModelVersion,
		"train_score", rep.TrainScore,
		"test_score", rep.TestScore,
		log.ParamsKey, rep.BestParams.String(),
	)
	return nil
}
