package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/BTreeMap/LeadPipe/internal/automation"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/providercfg"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// ProviderDirName is the badger directory holding the provider record.
const ProviderDirName = "provider"

// app is the set of components sharing one state directory.
type app struct {
	cfg       config.Config
	lock      *lockfile.Lock
	store     store.Backend
	providers *providercfg.BadgerStore
	router    *messaging.Router
	sched     scheduler.Scheduler
	sim       *automation.Simulator
	engine    *automation.Engine
	crm       *crm.Service
}

// openState locks the state directory and opens the entity store.
func openState(cfg config.Config) (*app, error) {
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, lock: lock}

	dsn := cfg.StoreDSN()
	st, err := store.New(store.WithDSN(dsn))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	slog.Debug("store opened", "type", storeType(dsn))
	return a, nil
}

func storeType(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return store.DetectDSNType(dsn)
}

// openProviders opens the provider configuration store.
func (a *app) openProviders() error {
	p, err := providercfg.OpenBadgerStore(filepath.Join(a.cfg.StateDir, ProviderDirName))
	if err != nil {
		return err
	}
	a.providers = p
	return nil
}

// wireAutomation builds the router, scheduler, simulator, engine and CRM
// service. Nothing runs until startAutomation.
func (a *app) wireAutomation() {
	a.router = messaging.NewRouter(messaging.NewSimulatedService())
	if a.cfg.Storage.DurableJobs {
		a.sched = scheduler.NewJobScheduler(a.store, a.cfg.Storage.JobPollInterval)
	} else {
		a.sched = scheduler.NewTimerScheduler()
	}
	a.sim = automation.NewSimulator(a.store, a.sched, a.router,
		automation.WithDeliveryLatency(a.cfg.Automation.DeliveryLatency))
	a.engine = automation.NewEngine(a.store, a.sim,
		automation.WithCompanyFallback(a.cfg.Automation.CompanyFallback))
	a.crm = crm.New(a.store, a.engine)
	slog.Debug("automation wired", "durable_jobs", a.cfg.Storage.DurableJobs, "delivery_latency", a.cfg.Automation.DeliveryLatency)
}

func (a *app) factoryOpts() messaging.FactoryOpts {
	return messaging.FactoryOpts{Dedup: a.store, StateDir: a.cfg.StateDir}
}

// startAutomation starts the transports and the scheduler, applies the stored
// provider and re-schedules messages left in flight by the last run.
func (a *app) startAutomation(ctx context.Context) error {
	if err := a.router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging: %w", err)
	}
	if err := a.applyStoredProvider(ctx); err != nil {
		// A broken provider must not keep the CRM down.
		slog.Error("stored provider could not be started, using the simulated transport", "error", err)
	}
	if err := a.sim.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	n, err := a.sim.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-flight messages: %w", err)
	}
	if n > 0 {
		slog.Info("in-flight messages rescheduled", "count", n)
	}
	return nil
}

func (a *app) applyStoredProvider(ctx context.Context) error {
	if a.providers == nil {
		return nil
	}
	cfg, err := a.providers.Load(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		slog.Info("no provider configured, messages use the simulated transport")
		return nil
	}
	routes, err := messaging.RoutesFromConfig(*cfg, a.factoryOpts())
	if err != nil {
		return err
	}
	if err := a.router.Apply(routes); err != nil {
		return err
	}
	slog.Info("provider started", "provider", cfg.Provider)
	return nil
}

// seedIfEmpty applies the configured fixtures when no pipeline exists.
func (a *app) seedIfEmpty(ctx context.Context) error {
	empty, err := a.crm.IsEmpty(ctx)
	if err != nil || !empty {
		return err
	}
	seed, err := loadSeed(a.cfg)
	if err != nil {
		return err
	}
	_, err = a.crm.ApplySeed(ctx, seed)
	return err
}

func loadSeed(cfg config.Config) (config.Seed, error) {
	if cfg.Automation.SeedFile != "" {
		return config.LoadSeed(cfg.Automation.SeedFile)
	}
	return config.DefaultSeed()
}

// Close stops everything that was started, in reverse order.
func (a *app) Close() error {
	var errs []error
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.router != nil {
		if err := a.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("messaging: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.providers != nil {
		if err := a.providers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("provider store: %w", err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("lock: %w", err))
		}
	}
	return errors.Join(errs...)
}
