package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything main needs to assemble the service. Values come
// from the environment, optionally seeded from a .env file.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// StorageDriver selects the repository backend: "memory" or "postgres".
	StorageDriver string
	PostgresDSN   string

	PaymentTimeout time.Duration
	SweepInterval  time.Duration
	GatewaySecret  string
}

func Load() Config {
	// missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	return Config{
		ServiceName:    getenv("SERVICE_NAME", "marketcore"),
		Env:            getenv("ENV", "dev"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		StorageDriver:  getenv("STORAGE_DRIVER", "memory"),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		PaymentTimeout: getduration("PAYMENT_TIMEOUT", 5*time.Minute),
		SweepInterval:  getduration("PAYMENT_SWEEP_INTERVAL", time.Minute),
		GatewaySecret:  getenv("GATEWAY_SECRET", "sandbox-secret"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
