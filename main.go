package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pvp-room-system/config"
	"pvp-room-system/fair"
	"pvp-room-system/handlers"
	"pvp-room-system/middleware"
	"pvp-room-system/models"
	"pvp-room-system/services"
	"pvp-room-system/utils/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof("no .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Errorf("failed to connect to database: %v", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.BalanceLog{},
		&models.Notification{},
	); err != nil {
		logger.Errorf("failed to migrate database: %v", err)
		os.Exit(1)
	}

	app := fiber.New()

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-Idempotency-Key",
		AllowCredentials: true,
	}))

	hub := services.NewHub()
	engine := fair.NewEngine()
	ledger := services.NewLedgerService(db)
	resolver := services.NewResolver(db, ledger, hub, engine, cfg)
	rooms := services.NewRoomService(resolver)
	sweeper := services.NewSweeper(resolver)
	health := services.NewHealthService(rooms, sweeper)

	idem := middleware.NewIdempotencyStore(cfg.IdempotencyTTL)
	defer idem.Close()

	if err := sweeper.Start(); err != nil {
		logger.Errorf("failed to start sweeper: %v", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	handlers.SetupRoomRoutes(app, rooms, health, hub, idem)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Errorf("server error: %v", err)
		}
	}()

	logger.Infof("pvp room engine running on :%d (sweep every %s)", cfg.Port, cfg.SweepInterval)

	<-ctx.Done()
	logger.Infof("shutting down")
	_ = app.Shutdown()
}
