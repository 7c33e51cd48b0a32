package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/krishiv-patel/thelatestnew/internal/cache"
	"github.com/krishiv-patel/thelatestnew/internal/config"
	"github.com/krishiv-patel/thelatestnew/internal/domain"
	"github.com/krishiv-patel/thelatestnew/internal/engine"
	"github.com/krishiv-patel/thelatestnew/internal/remote"
	"github.com/krishiv-patel/thelatestnew/internal/remote/mongostore"
	"github.com/krishiv-patel/thelatestnew/internal/snapshot"
)

// cartsyncd keeps one identity's cart in sync against the remote store. It
// exists to run the sync engine outside of tests: point it at Mongo and
// Redis, give it an identity, and watch the log.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	mongoDB, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Client().Disconnect(ctx)
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	store := mongostore.New(mongoDB)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	var cartCache cache.CartCache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable, running without cart cache: %v", err)
	} else {
		log.Printf("Redis ping succeeded")
		cartCache = cache.NewRedisCache(redisClient)
	}

	limiter := remote.NewLimiter(remote.DefaultLimiterConfig(), nil)
	adapter := remote.NewAdapter(store, limiter, cartCache)

	var local snapshot.Store = snapshot.NewMemStore()
	if cfg.SnapshotPath != "" {
		local = snapshot.NewFileStore(cfg.SnapshotPath)
	}

	eng := engine.New(engine.Config{
		DebounceWindow: cfg.DebounceWindow,
	}, local, adapter, engine.NewStaticIdentity(cfg.IdentityEmail))

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync engine: %v", err)
	}
	defer eng.Close()

	unsub := eng.Subscribe(func(c domain.Cart) {
		log.Printf("Cart for %s: %d lines, total %s", c.Key, len(c.Lines), c.Total)
	})
	defer unsub()

	log.Printf("Syncing cart for %s (state %s)", cfg.IdentityEmail, eng.State())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart sync...")
	log.Println("Cart sync stopped")
}
