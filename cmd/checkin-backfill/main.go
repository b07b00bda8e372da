// Command checkin-backfill recomputes the check-in mode for every event and
// repairs rows that drifted after attribute edits. Safe to re-run; it only
// touches drifted events.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-events/internal/checkin"
	"campus-events/internal/config"
	"campus-events/internal/logger"
	registration_db "campus-events/internal/registration/db"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report drifted events without repairing them")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN()))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	store := &registration_db.DB{Bun: bun.NewDB(sqldb, pgdialect.New())}

	ctx := context.Background()
	events, err := store.ListEvents(ctx)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to list events: %v", err))
	}

	drifted := checkin.DetectDrift(events)
	log.Info("BACKFILL", fmt.Sprintf("Scanned %d events, %d drifted", len(events), len(drifted)))
	if len(drifted) == 0 {
		return
	}

	byID := make(map[string]int, len(events))
	for i, ev := range events {
		byID[ev.ID] = i
	}

	repaired := 0
	for _, id := range drifted {
		ev := events[byID[id]]
		mode := checkin.DetermineMode(ev.IsPaid, ev.IsExternalEvent)
		log.Info("BACKFILL", fmt.Sprintf("Event %s: %s -> %s (paid=%t external=%t)",
			ev.ID, ev.CheckInMode, mode, ev.IsPaid, ev.IsExternalEvent))
		if *dryRun {
			continue
		}
		if err := store.RepairCheckInMode(ctx, ev.ID, mode); err != nil {
			log.Error("BACKFILL", fmt.Sprintf("Failed to repair event %s: %v", ev.ID, err))
			continue
		}
		repaired++
	}

	if *dryRun {
		log.Info("BACKFILL", "Dry run, no events repaired")
		return
	}
	log.Info("BACKFILL", fmt.Sprintf("Repaired %d of %d drifted events", repaired, len(drifted)))
}
