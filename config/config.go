// config/config.go

// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every setting of the cart service.
type Config struct {
	Port     string // HTTP port for the cart API
	GRPCPort string // gRPC port for health checks

	APIBaseURL  string        // storefront API serving /products and /stock
	APITimeout  time.Duration // per-request timeout towards the storefront API
	CatalogTTL  time.Duration // product metadata cache lifetime, 0 disables
	ToastBuffer int           // toasts kept per session until drained

	CartStore     string // local, redis or mongo
	CartCodec     string // json or proto
	RedisAddr     string
	MongoURI      string
	MongoDatabase string

	RabbitMQURL string // cart update broadcast; empty disables

	OTelEndpoint string // OTLP gRPC collector endpoint
	OTelExporter string // otlp, stdout or none
	LogLevel     string
}

// Load reads path (if it exists) into the process environment without
// overriding variables already set, then builds a Config.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Config{}, errors.Wrapf(err, "load %s", path)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		GRPCPort:      getenv("GRPC_PORT", "7070"),
		APIBaseURL:    getenv("API_BASE_URL", "http://localhost:3333"),
		CartStore:     strings.ToLower(getenv("CART_STORE", "local")),
		CartCodec:     strings.ToLower(getenv("CART_CODEC", "json")),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getenv("MONGO_DATABASE", "rocketshoes"),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
		OTelEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelExporter:  strings.ToLower(getenv("OTEL_EXPORTER", "otlp")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.APITimeout, err = durationEnv("API_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CatalogTTL, err = durationEnv("CATALOG_CACHE_TTL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ToastBuffer, err = intEnv("TOAST_BUFFER", 16); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	switch c.CartStore {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR environment variable is required when CART_STORE=redis")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI environment variable is required when CART_STORE=mongo")
		}
	default:
		return errors.Errorf("unknown CART_STORE %q", c.CartStore)
	}

	switch c.OTelExporter {
	case "otlp", "stdout", "none":
	default:
		return errors.Errorf("unknown OTEL_EXPORTER %q", c.OTelExporter)
	}
	return nil
}

// RedisAddress appends the default port when REDIS_ADDR has none.
func (c Config) RedisAddress() string {
	if strings.Contains(c.RedisAddr, ":") {
		return c.RedisAddr
	}
	return c.RedisAddr + ":6379"
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}
