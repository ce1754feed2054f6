package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hpcbench/internal/config"
	"hpcbench/internal/logger"
	"hpcbench/internal/matrix"
	"hpcbench/internal/observability"
	"hpcbench/internal/store/postgres"
	"hpcbench/internal/sweepfile"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

var errNoDatabase = errors.New("no database configured (set DATABASE_URL or database_url)")

// environment holds what every command needs: configuration, logging and telemetry.
type environment struct {
	cfg         *config.Config
	log         *slog.Logger
	metrics     *observability.Metrics
	instruments *observability.Instruments

	shutdownTracer func(context.Context) error
	db             *postgres.Store
}

func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg: cfg,
		log: logger.New(cmd.ErrOrStderr(), cfg.LogLevel),
	}

	env.metrics, err = observability.InitMetrics()
	if err != nil {
		return nil, err
	}
	env.instruments, err = observability.NewInstruments(otel.Meter(observability.ServiceName))
	if err != nil {
		return nil, err
	}

	env.shutdownTracer, err = observability.InitTracer(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	return env, nil
}

// database connects on first use. It fails with errNoDatabase when no URL is configured.
func (e *environment) database(ctx context.Context) (*postgres.Store, error) {
	if e.db != nil {
		return e.db, nil
	}
	if e.cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	db, err := postgres.New(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	e.db = db
	return db, nil
}

// sweep loads a sweep by name and fills the envelope from the configuration.
func (e *environment) sweep(name string) (matrix.SweepSpec, error) {
	file, err := sweepfile.Load(e.cfg.SweepFile)
	if err != nil {
		return matrix.SweepSpec{}, err
	}
	spec, err := file.Lookup(name)
	if err != nil {
		return matrix.SweepSpec{}, fmt.Errorf("%w (available: %v)", err, file.Names())
	}
	if spec.Envelope.OutputDir == "" {
		spec.Envelope.OutputDir = e.cfg.ResultsDir
	}
	if spec.Envelope.LaunchCommand == "" {
		spec.Envelope.LaunchCommand = e.cfg.Scheduler.LaunchCommand
	}
	return spec, nil
}

// close flushes telemetry and releases the database connection.
func (e *environment) close(ctx context.Context) {
	if e.cfg.MetricsTextfile != "" {
		if err := e.metrics.WriteTextfile(e.cfg.MetricsTextfile); err != nil {
			e.log.Error("failed to write metrics", "path", e.cfg.MetricsTextfile, "error", err)
		}
	}
	if err := e.metrics.Shutdown(ctx); err != nil {
		e.log.Error("failed to shutdown metrics", "error", err)
	}
	if e.shutdownTracer != nil {
		if err := e.shutdownTracer(ctx); err != nil {
			e.log.Error("failed to shutdown tracer", "error", err)
		}
	}
	if e.db != nil {
		e.db.Close()
	}
}
