// Command points-worker consumes check-in events and maintains per-user
// attendance point balances. The balances are gamification bookkeeping;
// nothing in the registration path ever reads them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-events/internal/config"
	"campus-events/internal/kafka"
	"campus-events/internal/logger"
	"campus-events/internal/models"
)

const pointsPerCheckIn = 10

func awardPoints(ctx context.Context, db *bun.DB, userID string, at time.Time) error {
	tally := &models.PointsTally{
		UserID:    userID,
		Points:    pointsPerCheckIn,
		UpdatedAt: at,
	}
	_, err := db.NewInsert().
		Model(tally).
		On("CONFLICT (user_id) DO UPDATE").
		Set("points = user_points.points + ?", pointsPerCheckIn).
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Points Worker")

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
	db := bun.NewDB(sqldb, pgdialect.New())

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CheckInEvents, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("APP", "Shutdown signal received")
		cancel()
	}()

	log.Info("KAFKA", fmt.Sprintf("Consuming %s as group %s", cfg.Kafka.Topics.CheckInEvents, cfg.Kafka.GroupID))
	err := consumer.ConsumeCheckIns(ctx, func(event kafka.CheckInEvent) {
		if event.UserID == "" {
			log.Warn("POINTS", "Skipping check-in event without a user ID")
			return
		}
		if err := awardPoints(ctx, db, event.UserID, event.CheckedInAt); err != nil {
			log.Error("POINTS", fmt.Sprintf("Failed to award points to %s: %v", event.UserID, err))
			return
		}
		log.Info("POINTS", fmt.Sprintf("Awarded %d points to %s for event %s", pointsPerCheckIn, event.UserID, event.EventID))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	log.Info("APP", "Points Worker shutdown complete")
}
