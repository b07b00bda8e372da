package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-events/internal/auth"
	"campus-events/internal/config"
	"campus-events/internal/database/migrations"
	"campus-events/internal/kafka"
	"campus-events/internal/logger"
	"campus-events/internal/payment"
	payment_api "campus-events/internal/payment/api"
	payment_db "campus-events/internal/payment/db"
	"campus-events/internal/qrtoken"
	"campus-events/internal/registration"
	registration_api "campus-events/internal/registration/api"
	registration_db "campus-events/internal/registration/db"
	rediswrap "campus-events/internal/registration/redis"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN()))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	maxRetries := 5
	var err error
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		err = sqldb.Ping()
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}
	log.Info("DATABASE", "PostgreSQL connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Events Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()

	// A missing signing secret is fatal at startup, never at mint time.
	if err := cfg.QR.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	codec, err := qrtoken.New(cfg.QR.SigningSecret)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx := context.Background()

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	log.Info("DATABASE", "Running migrations")
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	defer runner.Close()

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()
	admissionLock := rediswrap.NewLock(redisClient, cfg.Redis.LockTTL)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		requiredTopics := []string{cfg.Kafka.Topics.CheckInEvents, cfg.Kafka.Topics.RegistrationEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CheckInEvents, cfg.Kafka.Topics.RegistrationEvents)
		defer producer.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	registrationService := registration.NewService(
		&registration_db.DB{Bun: bunDB},
		codec,
		admissionLock,
		publisherOrNil(producer),
		log,
		cfg.QR.MaxAge,
	)
	paymentService := payment.NewService(
		&payment_db.DB{Bun: bunDB},
		codec,
		checkInPublisherOrNil(producer),
		log,
		cfg.QR.MaxAge,
	)

	registrationHandler := registration_api.NewHandler(registrationService, log)
	paymentHandler := payment_api.NewHandler(paymentService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api/v1", func(r chi.Router) {
			registrationHandler.Routes(r)
			paymentHandler.Routes(r)
		})
		log.Info("ROUTER", "Registration and payment routes registered under /api/v1")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Events Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Events Service shutdown complete")
	}
}

// A nil *kafka.Producer stored directly in the service interfaces would not
// compare equal to nil, so the conversion happens here.
func publisherOrNil(p *kafka.Producer) registration.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func checkInPublisherOrNil(p *kafka.Producer) payment.Publisher {
	if p == nil {
		return nil
	}
	return p
}
