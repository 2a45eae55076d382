package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medilink/pharmacy/internal/adapter/handler"
	"github.com/medilink/pharmacy/internal/adapter/storage"
	"github.com/medilink/pharmacy/internal/config"
	"github.com/medilink/pharmacy/internal/core/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mysql")
	}
	db.SetMaxOpenConns(cfg.DBMaxConns)
	db.SetMaxIdleConns(cfg.DBIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}
	logger.Info().Msg("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	logger.Info().Msg("connected to redis")

	// Initialize adapters and service
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	pharmacyService := service.NewPharmacyService(
		mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter,
		logger.With().Str("component", "pharmacy").Logger(),
	)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(pharmacyService)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", httpHandler.HealthCheck)
	mux.HandleFunc("POST /api/medicines", httpHandler.RegisterMedicine)
	mux.HandleFunc("GET /api/medicines", httpHandler.ListMedicines)
	mux.HandleFunc("GET /api/medicines/{id}", httpHandler.GetMedicine)
	mux.HandleFunc("POST /api/medicines/{id}/stock", httpHandler.AdjustStock)
	mux.HandleFunc("POST /api/prescriptions", httpHandler.CreatePrescription)
	mux.HandleFunc("GET /api/prescriptions", httpHandler.ListPrescriptions)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("HTTP server stopped")

	rdb.Close()
	db.Close()
	logger.Info().Msg("connections closed")
}
