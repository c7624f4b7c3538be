package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/caregate/caregate"
	"github.com/caregate/caregate/api"
	"github.com/caregate/caregate/config"
	"github.com/caregate/caregate/domain"
	"github.com/caregate/caregate/gormstore"
	"github.com/caregate/caregate/internal/logger"
	"github.com/caregate/caregate/memstore"
	"github.com/caregate/caregate/redisstore"
	"github.com/caregate/caregate/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting CareGate Authentication Service",
		zap.Int("port", cfg.Port),
		zap.String("backend", cfg.StoreBackend),
	)

	accounts, tokens, err := buildStores(cfg)
	if err != nil {
		logger.Log.Fatal("failed to initialize storage", zap.Error(err))
	}

	loginManager := caregate.NewDefaultLoginManager(accounts)
	regManager := caregate.NewDefaultRegistrationManager(accounts, tokens)
	recoveryManager := caregate.NewDefaultRecoveryManager(accounts, tokens)
	sessionManager := caregate.NewDefaultSessionManager(tokens)

	if cfg.Debug {
		if err := caregate.SeedDemoAccount(context.Background(), accounts); err != nil {
			logger.Log.Warn("demo account not seeded", zap.Error(err))
		}
	}

	metrics, err := telemetry.NewProvider("caregate")
	if err != nil {
		logger.Log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer metrics.Shutdown(context.Background())

	h := api.NewHandler(accounts, loginManager, regManager, recoveryManager, sessionManager)
	h.SetTelemetry(metrics)
	h.SetSecureCookies(cfg.SecureCookies)
	h.SetDebug(cfg.Debug)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	g := e.Group("/api/auth")
	h.RegisterRoutes(g)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}

// tokenStores groups the three token-keyed stores so backends can mix:
// the redis backend keeps accounts in SQL but tokens in Redis.
type tokenStores interface {
	domain.SessionStorage
	domain.ResetTokenStorage
	domain.RegistrationStorage
}

func buildStores(cfg *config.Config) (domain.AccountStorage, tokenStores, error) {
	switch cfg.StoreBackend {
	case "memory":
		store := memstore.New()
		return store, store, nil

	case "sqlite":
		repo, err := gormstore.Open(cfg.DBType, cfg.DSN, cfg.SkipAutoMigrate)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil

	case "redis":
		repo, err := gormstore.Open(cfg.DBType, cfg.DSN, cfg.SkipAutoMigrate)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		return repo, redisstore.New(client, ""), nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
