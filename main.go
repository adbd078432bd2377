package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"apzla-backend/config"
	"apzla-backend/handlers"
	"apzla-backend/logger"
	"apzla-backend/middleware"
	"apzla-backend/services"
	"apzla-backend/store"
)

func connectToDatabase(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres", nil)
	return pool, nil
}

func connectToRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("connected to redis", logger.Fields{"addr": cfg.RedisAddr})
	return client, nil
}

// openStore returns the configured document store and a function that
// releases its connections.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := connectToDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to prepare documents table: %w", err)
		}
		return pg, pool.Close, nil

	case config.StoreRedis:
		client, err := connectToRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), func() { client.Close() }, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart", nil)
		return store.NewMemoryStore(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func main() {
	logger.Init()
	cfg := config.Load()

	if cfg.CheckinTokenSecret == "" {
		logger.Warn("CHECKIN_TOKEN_SECRET is not set, check-in links cannot be issued", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, closeStore, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("unable to open store", logger.Fields{"driver": cfg.StoreDriver, "error": err})
	}
	defer closeStore()

	normalize := services.CountryCodeNormalizer(cfg.PhoneCountryCode)
	directory := services.NewDirectory(st, normalize, services.SystemClock{})
	checkins := services.NewCheckinService(st, directory, cfg.Checkin(), services.SystemClock{}, nil)
	invites := services.NewInviteService(st, directory, cfg.Checkin(), services.SystemClock{})

	// Create handlers
	checkinHandler := handlers.NewCheckinHandler(checkins)
	memberHandler := handlers.NewMemberHandler(directory, invites)

	// Setup Gin
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// API routes
	api := router.Group("/api/v1")
	{
		handlers.RegisterRoutes(api, checkinHandler, memberHandler, middleware.RequireAdmin(cfg.AdminJWTSecret))
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"store":     cfg.StoreDriver,
			"timestamp": time.Now().Unix(),
		})
	})

	logger.Info("server starting", logger.Fields{"port": cfg.Port, "store": cfg.StoreDriver})
	if err := router.Run(":" + cfg.Port); err != nil {
		// Fatal exits without running deferred calls.
		closeStore()
		logger.Fatal("failed to start server", logger.Fields{"error": err})
	}
}
