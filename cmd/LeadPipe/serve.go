package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
)

// serveOptions are the serve flags. They are bound on both the root and the
// serve command, so either spelling works.
type serveOptions struct {
	addr            string
	databaseURL     string
	durableJobs     bool
	deliveryLatency time.Duration
	noSeed          bool
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "", "API listen address (overrides $API_ADDR)")
	f.StringVar(&o.databaseURL, "database-url", "", "Postgres URL, SQLite path or \"memory\" (overrides $DATABASE_URL)")
	f.BoolVar(&o.durableJobs, "durable-jobs", false, "persist message transitions as database jobs (overrides $LEADPIPE_DURABLE_JOBS)")
	f.DurationVar(&o.deliveryLatency, "delivery-latency", 0, "simulated delay between send and delivery (overrides $LEADPIPE_DELIVERY_LATENCY)")
	f.BoolVar(&o.noSeed, "no-seed", false, "do not apply the seed fixtures to an empty store")
}

// apply overlays the flags that were set on the command line.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if f.Changed("database-url") {
		cfg.Storage.DatabaseURL = o.databaseURL
	}
	if f.Changed("durable-jobs") {
		cfg.Storage.DurableJobs = o.durableJobs
	}
	if f.Changed("delivery-latency") {
		cfg.Automation.DeliveryLatency = o.deliveryLatency
	}
}

func newServeCommand(opts *rootOptions, serve *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the message simulator and the time-based sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serve)
		},
	}
	serve.bind(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, serve *serveOptions) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	serve.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("shutdown incomplete", "error", err)
		}
	}()
	if err := a.openProviders(); err != nil {
		return err
	}
	a.wireAutomation()
	if err := a.startAutomation(ctx); err != nil {
		return err
	}
	if !serve.noSeed {
		if err := a.seedIfEmpty(ctx); err != nil {
			return err
		}
	}

	return a.run(ctx)
}

// run blocks until ctx is cancelled or one of the loops fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sweeper := scheduler.NewSweeper()
	if err := sweeper.AddJob(a.cfg.Automation.SweepSchedule, a.sweepJob(gctx)); err != nil {
		return err
	}

	server := api.NewServer(a.crm,
		api.WithAddr(a.cfg.Server.Addr),
		api.WithRouter(a.router),
		api.WithProviderStore(a.providers),
		api.WithFactoryOpts(a.factoryOpts()),
	)

	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return a.engine.Listen(gctx, a.router) })

	slog.Info("LeadPipe started", "addr", a.cfg.Server.Addr, "state_dir", a.cfg.StateDir)
	err := g.Wait()
	slog.Info("LeadPipe stopped")
	return err
}

// sweepJob returns the cron callback for the time-based sweep. It is a
// no-op once ctx is done.
func (a *app) sweepJob(ctx context.Context) func() {
	return func() {
		if ctx.Err() != nil {
			slog.Debug("time-based sweep skipped after shutdown")
			return
		}
		if _, err := a.engine.Sweep(ctx); err != nil {
			slog.Error("time-based sweep failed", "error", err)
		}
	}
}
