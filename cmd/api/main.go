package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/RyanBruno/arb-gnucash-importer/internal/arbiscan"
	"github.com/RyanBruno/arb-gnucash-importer/internal/config"
	"github.com/RyanBruno/arb-gnucash-importer/internal/prices"
	"github.com/RyanBruno/arb-gnucash-importer/internal/server"
	"github.com/RyanBruno/arb-gnucash-importer/internal/storage"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main starts the read-only API over the ledger entry store, with
// graceful shutdown on SIGINT/SIGTERM.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg, err := config.Load(os.Getenv("IMPORTER_CONFIG"))
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.ClickHouseAddr == "" {
		logger.Fatal("clickhouse_addr is required for the api server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	store, err := storage.NewClickHouseStore(ctx, storage.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to ClickHouse")
	}
	defer func() {
		_ = store.Close()
	}()

	// Price lookups are optional; they need both a Redis cache and an
	// explorer API key.
	var priceSvc *prices.Service
	if cfg.RedisAddr != "" && cfg.APIKey != "" {
		rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rclient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		cache, err := prices.NewRedisCache(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create price cache")
		}
		quoter := arbiscan.NewClient(arbiscan.ClientConfig{
			BaseURL: cfg.APIURL,
			APIKey:  cfg.APIKey,
			Logger:  logger,
		})
		priceSvc = prices.NewService(quoter, cache, logger)
	} else {
		logger.Info("price endpoint disabled; set redis_addr and an API key to enable it")
	}

	h := &server.Handlers{
		Store:   store,
		Prices:  priceSvc,
		DevMode: cfg.DevMode,
		Logger:  logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIServerKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		// ErrServerClosed is expected during graceful shutdown
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}
