// seed inserts the demo subjects into Postgres for local testing.
// Idempotent: subjects that already exist are left untouched.
package main

import (
	"context"
	"log"
	"time"

	"attribute-change-control/backend/internal/app"
	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/db"
	"attribute-change-control/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	subjects := app.DemoSubjects(time.Now().UTC())
	n, err := app.Seed(ctx, store.NewPostgres(conn, 10*time.Second), subjects)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("seed: created %d of %d demo subjects", n, len(subjects))
	for _, s := range subjects {
		log.Printf("seed: %s (%s, phone=%t, changes=%d)", s.ID, s.Email, s.HasVerifiablePhone(), s.ChangeCount)
	}
}
