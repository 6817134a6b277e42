// migrate runs DB migrations from embedded SQL: go run ./cmd/migrate -direction up|down|status.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down, or status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *direction == "status" {
		st, err := migrate.CurrentStatus(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		switch {
		case st.Empty:
			fmt.Println("no migrations applied")
		case st.Dirty:
			fmt.Printf("version %d (dirty)\n", st.Version)
		default:
			fmt.Printf("version %d\n", st.Version)
		}
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Already at target version; success.
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
