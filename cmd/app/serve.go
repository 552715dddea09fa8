package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sme-compliance/internal/infra/api"
	"sme-compliance/internal/infra/metrics"
	"sme-compliance/internal/infra/sched"
	"sme-compliance/internal/infra/worker"
)

type serveFlags struct {
	workers     int
	noScheduler bool
	noOutbox    bool
}

func serveCmd(gf *globalFlags) *cobra.Command {
	var sf serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, outbox dispatcher and reminder scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), gf, sf)
		},
	}
	cmd.Flags().IntVar(&sf.workers, "workers", 8, "outbox delivery workers")
	cmd.Flags().BoolVar(&sf.noScheduler, "no-scheduler", false, "do not run the in-process reminder cron")
	cmd.Flags().BoolVar(&sf.noOutbox, "no-outbox", false, "do not dispatch the outbox from this replica")
	return cmd
}

func runServe(parent context.Context, gf *globalFlags, sf serveFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(gf)
	if err != nil {
		return err
	}
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(Version, Commit)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := api.NewServer(api.Deps{
		Payments:     a.payments,
		Reconcile:    a.reconcile,
		Verifier:     a.verifier,
		Credits:      a.credits,
		Entitlements: a.entitlements,
		Reminders:    a.reminderJob,
		Audit:        a.auditor,
		Auth:         api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Audience),
		Health: map[string]api.HealthCheck{
			"postgres": func(ctx context.Context) error { return a.pool.Ping(ctx) },
			"redis":    a.redis.Ping,
		},
	}, api.Options{
		CallbackSecretHeader: cfg.Mpesa.CallbackSecretHeader,
		CronSecret:           cfg.Scheduler.CronSecret,
		AllowedOrigins:       cfg.HTTP.AllowedOrigins,
		RequestTimeout:       cfg.HTTP.RequestTimeout,
		Dev:                  cfg.Runtime.Dev,
	}, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down http server")
		return httpSrv.Shutdown(shutdownCtx)
	})

	if !sf.noOutbox {
		pool := worker.NewPool(sf.workers, logger)
		pool.Start(gctx)
		dispatcher := worker.NewOutboxDispatcher(a.outbox, a.deliverers, worker.DispatcherOptions{
			Interval:    cfg.Outbox.PollInterval,
			BatchSize:   cfg.Outbox.BatchSize,
			MaxAttempts: cfg.Outbox.MaxAttempts,
			Lease:       cfg.Outbox.Lease,
		}, logger)
		g.Go(func() error {
			defer pool.Stop()
			return ignoreCanceled(dispatcher.Run(gctx, pool))
		})
	}

	if !sf.noScheduler {
		s, err := sched.NewScheduler(cfg.Scheduler.ReminderCron, cfg.Scheduler.Timezone, a.reminderJob, 0, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(s.Run(gctx)) })
	}

	g.Go(func() error {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				st := a.pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	})

	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
