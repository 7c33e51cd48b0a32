// Package config reads the daemon's configuration from the environment, with
// a best-effort .env file on top for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI      string
	MongoDBName   string
	RedisAddr     string
	RedisPassword string

	// SnapshotPath is the local cart snapshot file. Empty keeps the
	// snapshot in memory only.
	SnapshotPath string

	// IdentityEmail is the fixed identity the daemon syncs for.
	IdentityEmail string

	DebounceWindow time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; a missing file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartsync"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SnapshotPath:  getEnv("CART_SNAPSHOT_PATH", "cart-snapshot.json"),
		IdentityEmail: os.Getenv("CART_IDENTITY_EMAIL"),
	}
	if cfg.IdentityEmail == "" {
		return Config{}, fmt.Errorf("CART_IDENTITY_EMAIL is required")
	}

	window, err := getDuration("CART_DEBOUNCE_WINDOW_MS", 2000)
	if err != nil {
		return Config{}, err
	}
	cfg.DebounceWindow = window

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultMs int) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(defaultMs) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("%s: expected a positive millisecond count, got %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
