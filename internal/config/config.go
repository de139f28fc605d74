package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL         string
	RequestTimeout time.Duration

	CatalogPageSize        int
	SerializeCartMutations bool

	SessionStore  string // memory, redis or sqlite
	RedisAddr     string
	RedisPassword string
	RedisURL      string
	RedisDB       int
	SQLitePath    string

	CartCacheTTL    time.Duration
	CartCacheJitter time.Duration

	KafkaBrokers []string

	BreakerMaxFailures uint32
	GuardSettleDelay   time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIURL:        strings.TrimRight(getEnv("STOREFRONT_API_URL", "http://localhost:8080"), "/"),
		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", "memory")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "./storefront.db"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.GuardSettleDelay, err = getDuration("SESSION_EXPIRED_SETTLE", time.Second); err != nil {
		return nil, err
	}
	if cfg.CartCacheTTL, err = getDuration("CART_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CartCacheTTL <= 0 {
		return nil, fmt.Errorf("CART_CACHE_TTL must be positive, got %s", cfg.CartCacheTTL)
	}
	if cfg.CartCacheJitter, err = getDuration("CART_CACHE_JITTER", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CartCacheJitter < 0 {
		return nil, fmt.Errorf("CART_CACHE_JITTER must not be negative, got %s", cfg.CartCacheJitter)
	}
	if cfg.CatalogPageSize, err = getInt("CATALOG_PAGE_SIZE", 6); err != nil {
		return nil, err
	}
	if cfg.CatalogPageSize < 1 {
		return nil, fmt.Errorf("CATALOG_PAGE_SIZE must be positive, got %d", cfg.CatalogPageSize)
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	maxFailures, err := getInt("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	if maxFailures < 1 {
		return nil, fmt.Errorf("BREAKER_MAX_FAILURES must be positive, got %d", maxFailures)
	}
	cfg.BreakerMaxFailures = uint32(maxFailures)
	if cfg.SerializeCartMutations, err = getBool("SERIALIZE_CART_MUTATIONS", false); err != nil {
		return nil, err
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.SessionStore {
	case "memory", "redis", "sqlite":
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
