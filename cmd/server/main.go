// server runs the HTTP API and the in-process expiry sweeper.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"attribute-change-control/backend/internal/app"
	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/server"
	"attribute-change-control/backend/internal/telemetry"
	"attribute-change-control/backend/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	deps := server.Deps{
		Workflow:            a.Workflow,
		AuditLogger:         a.AuditLogger,
		HealthPolicyChecker: a.Policy,
		Metrics:             a.Registry,
		ServiceName:         cfg.ServiceName,
	}
	if a.DB != nil {
		deps.HealthPinger = a.DB
	}
	if a.Outbox != nil {
		deps.DevOutbox = a.Outbox
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("server: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return (&workflow.Sweeper{Service: a.Workflow, Interval: cfg.SweepInterval()}).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("server: shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	// let fire-and-forget event emits finish before the exporters close
	time.Sleep(telemetry.ShutdownDrainDuration)
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Printf("server: close: %v", err)
	}
	if runErr != nil {
		log.Fatalf("server: %v", runErr)
	}
	log.Println("server: stopped")
}
