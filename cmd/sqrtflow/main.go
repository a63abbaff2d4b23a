// Command sqrtflow prints the square roots of a fixed set of integers,
// computed on a local compute context.
//
// Configuration is read from config.yml, .env and SQRTFLOW_* environment
// variables; with none of them present it uses every worker of the
// machine, keeps engine logging at warn and persists nothing.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/lguimbarda/parflow/flow/compute"
	"github.com/lguimbarda/parflow/internal/config"
	"github.com/lguimbarda/parflow/internal/logging"
	"github.com/lguimbarda/parflow/internal/resultstore"
	"github.com/lguimbarda/parflow/internal/sqrt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes one job, writing result lines to stdout and logs to stderr.
// Failures are logged before they are returned.
func run(ctx context.Context, stdout, stderr io.Writer, opts ...config.LoaderOption) error {
	cfg, err := config.Load(opts...)
	if err != nil {
		log := logging.New(logging.Config{}, stderr)
		log.Error().Err(err).Msg("load configuration")
		return err
	}

	base := logging.New(cfg.Logging, stderr)
	levels := logging.NewLevels()
	log := levels.Named(base, cfg.Compute.AppName)

	computeOpts := []compute.Option{
		compute.WithLogger(base),
		compute.WithLevels(levels),
	}
	if cfg.Quiet.Namespace != "" {
		lvl, _ := logging.ParseLevel(cfg.Quiet.Level)
		computeOpts = append(computeOpts, compute.WithQuietNamespace(cfg.Quiet.Namespace, lvl))
	}

	out := sqrt.NewLineWriter(stdout)
	observers := []func(sqrt.DerivedPair) error{out.Print}

	var store *resultstore.Store
	if cfg.Store.Enabled() {
		store, err = resultstore.Open(ctx, cfg.Store.DSN)
		if err != nil {
			log.Error().Err(err).Msg("open result store")
			return err
		}
		observers = append(observers, store.Observer(ctx))
	}

	open := func(ctx context.Context) (compute.Runner, error) {
		c, err := compute.New(ctx, cfg.Compute, computeOpts...)
		if err != nil {
			return nil, err
		}
		if store != nil {
			c.OnClose(store.Close)
		}
		return c, nil
	}

	err = sqrt.Run(ctx, open, sqrt.Input(), sqrt.Observers(observers...))
	if err != nil {
		// The context owns the store only once it exists.
		var initErr *compute.InitError
		if store != nil && errors.As(err, &initErr) {
			closeLogged(log, "result store", store.Close)
		}
		logFailure(log, err)
		return err
	}

	log.Debug().Msg("job finished")
	return nil
}

// closeLogged runs closeFn, logging a failure instead of returning it.
func closeLogged(log zerolog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn().Err(err).Msg("close " + name)
	}
}

func logFailure(log zerolog.Logger, err error) {
	event := log.Error().Err(err)
	if sqrt.IsInputError(err) {
		event = event.Bool("invalid_input", true)
	}
	event.Msg("job failed")
}
