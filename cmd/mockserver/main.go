package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/fakeapi"
	"github.com/fjod/storefront/internal/logger"
)

type Config struct {
	HTTPPort        string
	JWTSecret       string
	TokenTTL        time.Duration
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

func loadConfig() *Config {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "storefront-dev-secret"),
		TokenTTL:        24 * time.Hour,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	if ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "")); err == nil {
		cfg.TokenTTL = ttl
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}
	cfg := loadConfig()
	logg := logger.New(logger.Config{Level: cfg.LogLevel, Format: "text"})

	opts := []fakeapi.Option{
		fakeapi.WithLogger(logg),
		fakeapi.WithRequestTimeout(cfg.RequestTimeout),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(events.NewKafkaWriter(cfg.KafkaBrokers...))
		defer publisher.Close()
		opts = append(opts, fakeapi.WithOutbox(publisher))
		log.Printf("Publishing checkout events to %v", cfg.KafkaBrokers)
	}

	backend := fakeapi.NewServer(
		fakeapi.NewStore(fakeapi.SeedProducts()),
		fakeapi.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		opts...,
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", backend.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront mock backend starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
