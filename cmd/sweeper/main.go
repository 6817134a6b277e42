// sweeper runs the expiry sweeper on its own, for deployments that keep it out of the API process.
// Pass -once to run a single sweep and exit (e.g. from cron).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attribute-change-control/backend/internal/app"
	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/telemetry"
	"attribute-change-control/backend/internal/workflow"
)

func main() {
	once := flag.Bool("once", false, "Run one sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("sweeper: DATABASE_URL is required; the in-memory store is private to the server process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer func() {
		time.Sleep(telemetry.ShutdownDrainDuration)
		if err := a.Close(context.Background()); err != nil {
			log.Printf("sweeper: close: %v", err)
		}
	}()

	if *once {
		res, err := a.Workflow.Sweep(ctx)
		if err != nil {
			log.Printf("sweeper: %v", err)
			return
		}
		log.Printf("sweeper: expired %d pending, %d otp; flagged %d alerts", res.ExpiredPending, res.ExpiredOTP, res.FlaggedAlerts)
		return
	}
	if err := (&workflow.Sweeper{Service: a.Workflow, Interval: cfg.SweepInterval()}).Run(ctx); err != nil {
		log.Printf("sweeper: %v", err)
	}
}
