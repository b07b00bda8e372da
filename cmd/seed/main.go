// Command seed resets the development database and loads a small fixture set:
// one free internal event, one paid event with a pending ticket, and an
// external partner event. Never run against production.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-events/internal/checkin"
	"campus-events/internal/config"
	"campus-events/internal/models"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN()))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("Dropping tables...")
	dropTables(ctx, db)

	log.Println("Creating tables...")
	createTables(ctx, db)

	log.Println("Seeding sample data...")
	seedData(ctx, db)

	log.Println("Done.")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.PointsTally)(nil),
		(*models.PaymentVerification)(nil),
		(*models.Ticket)(nil),
		(*models.Registration)(nil),
		(*models.Event)(nil),
		(*models.User)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Registration)(nil),
		(*models.Ticket)(nil),
		(*models.PaymentVerification)(nil),
		(*models.PointsTally)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	now := time.Now()

	users := []models.User{
		{ID: "user001", Name: "Alice Perera", Email: "alice@campus.edu", Role: "STUDENT"},
		{ID: "user002", Name: "Bob Silva", Email: "bob@campus.edu", Role: "STUDENT"},
		{ID: "org001", Name: "Carol Fernando", Email: "carol@campus.edu", Role: "ORGANIZER"},
		{ID: "partner001", Name: "TechCorp Events", Email: "events@techcorp.io", Role: "EXTERNAL_PARTNER"},
	}
	_, _ = db.NewInsert().Model(&users).Exec(ctx)

	events := []models.Event{
		{
			ID:          "event-free",
			Name:        "Robotics Club Intro Night",
			Capacity:    50,
			CheckInMode: checkin.DetermineMode(false, false),
			Status:      models.EventUpcoming,
			StartDate:   now.AddDate(0, 0, 7),
			EndDate:     now.AddDate(0, 0, 7).Add(3 * time.Hour),
			CreatorID:   "org001",
			CreatedAt:   now,
		},
		{
			ID:          "event-paid",
			Name:        "Annual Gala Dinner",
			Capacity:    120,
			IsPaid:      true,
			Price:       25,
			CheckInMode: checkin.DetermineMode(true, false),
			Status:      models.EventUpcoming,
			StartDate:   now.AddDate(0, 1, 0),
			EndDate:     now.AddDate(0, 1, 0).Add(5 * time.Hour),
			CreatorID:   "org001",
			CreatedAt:   now,
		},
		{
			ID:                "event-external",
			Name:              "TechCorp Campus Hackathon",
			Capacity:          200,
			IsExternalEvent:   true,
			CheckInMode:       checkin.DetermineMode(false, true),
			Status:            models.EventUpcoming,
			StartDate:         now.AddDate(0, 0, 14),
			EndDate:           now.AddDate(0, 0, 15),
			CreatorID:         "org001",
			ExternalPartnerID: "partner001",
			CreatedAt:         now,
		},
	}
	_, _ = db.NewInsert().Model(&events).Exec(ctx)

	registrations := []models.Registration{
		{ID: "reg001", UserID: "user001", EventID: "event-free", Status: models.Registered, CreatedAt: now},
		{ID: "reg002", UserID: "user002", EventID: "event-external", Status: models.Registered, CreatedAt: now},
	}
	_, _ = db.NewInsert().Model(&registrations).Exec(ctx)

	ticket := models.Ticket{
		ID:       "ticket001",
		EventID:  "event-paid",
		UserID:   "user001",
		Price:    25,
		Status:   models.TicketPending,
		IssuedAt: now,
	}
	_, _ = db.NewInsert().Model(&ticket).Exec(ctx)
}
