package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hoardwatch-api/internal/cache"
	"hoardwatch-api/internal/config"
	"hoardwatch-api/internal/handler"
	"hoardwatch-api/internal/middleware"
	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/roblox"
	"hoardwatch-api/internal/router"
	"hoardwatch-api/internal/scanner"
	"hoardwatch-api/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting HoardWatch API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize collectibles store based on config
	var store repository.CollectiblesStore
	switch cfg.CollectiblesDB.Type {
	case "postgres", "postgresql":
		pgStore, err := repository.NewPostgresStore(cfg.CollectiblesDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		store = pgStore
		log.Println("PostgreSQL collectibles store initialized")
	default: // sqlite
		sqliteStore, err := repository.NewSQLiteStore(cfg.CollectiblesDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		store = sqliteStore
		log.Println("SQLite collectibles store initialized")
	}
	defer store.Close()

	// Initialize MySQL connection for API accounts (optional)
	var accountRepo repository.APIAccountRepository
	mysqlRepo, err := repository.NewMySQLAPIAccountRepository(cfg.Database.DSN())
	if err != nil {
		log.Printf("Warning: MySQL connection failed: %v", err)
	} else {
		defer mysqlRepo.Close()
		accountRepo = mysqlRepo
		log.Println("MySQL account repository initialized")
	}

	// Initialize Redis client (optional)
	redisAddr := cfg.Cache.RedisAddress()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	// Lookup cache: Redis when available, in-memory otherwise
	var lookupCache cache.Cache
	if redisClient != nil {
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     redisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis cache initialization failed: %v", err)
			lookupCache = cache.NewMemoryCache()
		} else {
			lookupCache = redisCache
		}
	} else {
		lookupCache = cache.NewMemoryCache()
	}
	defer lookupCache.Close()

	// Roblox client and scan pipeline
	robloxClient := roblox.New(cfg.Roblox, cfg.Scanner)
	reconciler := scanner.NewReconciler(robloxClient, store)
	registry := scanner.NewRegistry()
	scanService := scanner.NewService(robloxClient, reconciler, store, registry, cfg.Scanner)

	// Price history janitor
	janitor := service.NewPriceHistoryJanitor(store, service.JanitorConfig{
		Retention: cfg.CollectiblesDB.PriceRetention,
	})
	janitor.Start()
	defer janitor.Stop()

	// Token service (requires Redis)
	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Initialize handlers
	healthHandler := handler.New()
	itemHandler := handler.NewItemHandler(store, robloxClient, lookupCache)
	scanHandler := handler.NewScanHandler(scanService, store)
	playerHandler := handler.NewPlayerHandler(store, scanService)
	priceHandler := handler.NewPriceHandler(store)
	adminHandler := handler.NewAdminHandler(store, cfg.CollectiblesDB.Type, cfg.App.LoginKey)

	var authHandler *handler.AuthHandler
	if tokenService != nil && accountRepo != nil {
		authHandler = handler.NewAuthHandler(tokenService, accountRepo)
	}

	// Create auth middleware with injected dependencies (NO GLOBALS!)
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
		Accounts:     accountRepo,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		ItemHandler:    itemHandler,
		ScanHandler:    scanHandler,
		PlayerHandler:  playerHandler,
		PriceHandler:   priceHandler,
		AdminHandler:   adminHandler,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
