// Package app assembles the application: configuration in, running
// services out.
package app

import (
	"context"
	"fmt"

	"optflow/internal/config"
	"optflow/internal/logger"
	"optflow/internal/orchestrator"
	"optflow/internal/playbook"
	"optflow/internal/playstore"
	"optflow/internal/scheduler"
	monitorhttp "optflow/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns the wired services. Build with New, start with Run.
type App struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	sched *scheduler.IntervalScheduler
	http  *monitorhttp.Server
	books *playbook.Registry
	store *playstore.Store
}

// New wires the full dependency graph. Startup recovery runs here: an
// unresolvable play-store integrity violation aborts construction.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Orchestrator exposes the cycle engine for test and replay harnesses.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Run starts the poll loop, the playbook watcher and the monitoring HTTP
// server, and blocks until ctx ends or a service fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("monitor http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.books.Watch(ctx.Done())
	})

	group.Go(func() error {
		a.sched.Start(ctx, func(cycleCtx context.Context) {
			a.orch.RunCycle(cycleCtx)
		})
		return nil
	})

	return group.Wait()
}
