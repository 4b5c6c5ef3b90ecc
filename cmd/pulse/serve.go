package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/compliance-pulse/internal/application/schedules"
	appscans "github.com/bryanwahyu/compliance-pulse/internal/application/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/application/worker"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/httpserver"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
	"github.com/bryanwahyu/compliance-pulse/internal/middleware"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain the scan job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), true, false, false)
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Turn due schedules into scan jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), false, true, false)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run workers, the scheduler and the ops server in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), true, true, true)
	},
}

func serve(parent context.Context, withWorker, withScheduler, withOps bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.serve(ctx, serveMode{
		worker:    withWorker,
		scheduler: withScheduler,
		ops:       withOps,
		workers:   workerCount,
	}, nil)
}

type serveMode struct {
	worker, scheduler, ops bool
	workers                int
}

// serve runs the selected loops until ctx ends. Everything that can fail is
// built before the first goroutine starts, so an error return leaves nothing
// running. ready may be nil.
func (a *app) serve(ctx context.Context, mode serveMode, ready *middleware.Readiness) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	org := a.cfg.Worker.OrganizationID
	var jobExec worker.JobExecutor
	if mode.worker {
		exec, err := a.executor(ctx, org)
		if err != nil {
			return fmt.Errorf("build executor: %w", err)
		}
		jobExec = exec
		if org == "" {
			jobExec = &appscans.Pool{Template: *exec}
		}
	}

	if ready == nil {
		ready = &middleware.Readiness{}
	}
	var srv *http.Server
	if mode.ops {
		srv = &http.Server{
			Addr: fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler: httpserver.NewRouter(httpserver.Options{
				Logger:   logging.Component(a.logger, "ops"),
				Metrics:  a.metrics,
				Gatherer: a.registry,
				Checkers: map[string]middleware.HealthChecker{
					"database": &middleware.DatabaseHealthChecker{DB: a.store},
				},
				Readiness: ready,
				Token:     a.cfg.Server.OpsToken,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			a.logger.Info("ops server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("ops server error", "error", err)
				stop()
			}
		}()
	}

	var wg sync.WaitGroup
	if mode.scheduler {
		mgr := &schedules.Manager{
			Schedules:     a.store.Schedules(),
			Jobs:          a.store.Jobs(),
			Groups:        a.store.Groups(),
			MaxConcurrent: a.cfg.Scheduler.MaxConcurrent,
			PollInterval:  a.cfg.Scheduler.PollInterval,
			Audit:         a.audit,
			Metrics:       a.metrics,
			Logger:        logging.Component(a.logger, "scheduler"),
			Clock:         a.clock,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	if mode.worker {
		n := mode.workers
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			w := &worker.Worker{
				Jobs:           a.store.Jobs(),
				Schedules:      a.store.Schedules(),
				Executor:       jobExec,
				OrganizationID: org,
				PollInterval:   a.cfg.Worker.PollInterval,
				MaxRuntime:     a.cfg.Worker.MaxRuntime,
				Audit:          a.audit,
				Metrics:        a.metrics,
				Logger:         logging.Component(a.logger, "worker").With("worker", i),
				Clock:          a.clock,
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("worker stopped", "error", err)
				}
			}()
		}
	}

	ready.Set(true)
	<-ctx.Done()
	ready.Set(false)
	a.logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("ops server shutdown error", "error", err)
		}
	}
	wg.Wait()
	return nil
}

func init() {
	for _, c := range []*cobra.Command{workerCmd, runCmd} {
		c.Flags().IntVarP(&workerCount, "workers", "w", 1, "number of concurrent workers")
	}
}
