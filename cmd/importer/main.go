// Command importer fetches the on-chain history of one or more Arbitrum
// addresses, builds balanced double-entry ledger entries, and exports
// them as GnuCash-importable CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/RyanBruno/arb-gnucash-importer/internal/arbiscan"
	"github.com/RyanBruno/arb-gnucash-importer/internal/classify"
	"github.com/RyanBruno/arb-gnucash-importer/internal/config"
	"github.com/RyanBruno/arb-gnucash-importer/internal/export"
	"github.com/RyanBruno/arb-gnucash-importer/internal/fetch"
	"github.com/RyanBruno/arb-gnucash-importer/internal/ledger"
	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
	"github.com/RyanBruno/arb-gnucash-importer/internal/pipeline"
	"github.com/RyanBruno/arb-gnucash-importer/internal/prices"
	"github.com/RyanBruno/arb-gnucash-importer/internal/storage"
)

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("gas-for-incoming") {
		cfg.GasForIncoming = c.Bool("gas-for-incoming")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newExplorerClient(cfg *config.Config, logger *logrus.Logger) *arbiscan.Client {
	return arbiscan.NewClient(arbiscan.ClientConfig{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		PageSize:     cfg.PageSize,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    rate.Limit(cfg.RateLimit),
		RateBurst:    cfg.RateBurst,
		Logger:       logger,
	})
}

// newPriceService wires the cache-through price lookup. Redis wins over
// the JSON file cache when both are configured.
func newPriceService(ctx context.Context, cfg *config.Config, client *arbiscan.Client, logger *logrus.Logger) (*prices.Service, func(), error) {
	var cache prices.Cache
	switch {
	case cfg.RedisAddr != "":
		rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rclient.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		rc, err := prices.NewRedisCache(rclient)
		if err != nil {
			return nil, nil, err
		}
		cache = rc
	case cfg.PriceCachePath != "":
		cache = prices.OpenFileCache(cfg.PriceCachePath)
	default:
		return nil, nil, fmt.Errorf("price lookup needs redis_addr or price_cache_path")
	}

	cleanup := func() {
		if err := cache.Close(); err != nil {
			logger.WithError(err).Warn("failed to close price cache")
		}
	}
	return prices.NewService(client, cache, logger), cleanup, nil
}

func newClassifier(c *cli.Context, logger *logrus.Logger) (*classify.Classifier, error) {
	cls := classify.New(logger)
	for _, path := range c.StringSlice("labels") {
		if err := cls.LoadLabels(path); err != nil {
			return nil, fmt.Errorf("load labels %s: %w", path, err)
		}
	}
	for _, path := range c.StringSlice("categories") {
		if err := cls.LoadCategories(path); err != nil {
			return nil, fmt.Errorf("load categories %s: %w", path, err)
		}
	}
	if cls.Len() > 0 {
		logger.WithFields(logrus.Fields{
			"addresses": cls.Len(),
			"overrides": cls.Overrides(),
		}).Info("loaded address classifications")
	}
	return cls, nil
}

func runExport(c *cli.Context) error {
	logger := newLogger(c.Bool("verbose"))

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if cfg.APIKey == "" {
		return cli.Exit("an explorer API key is required: set "+config.EnvAPIKey+" or api_key in the config file", 2)
	}

	addresses := c.StringSlice("address")
	if len(addresses) == 0 {
		return cli.Exit("at least one --address is required", 2)
	}
	for i, a := range addresses {
		addresses[i] = models.NormalizeAddress(a)
		if !models.IsHexAddress(addresses[i]) {
			return cli.Exit(fmt.Sprintf("invalid address %q", a), 2)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newExplorerClient(cfg, logger)

	cls, err := newClassifier(c, logger)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	var priceSvc *prices.Service
	if c.Bool("prices") {
		svc, cleanup, err := newPriceService(ctx, cfg, client, logger)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		defer cleanup()
		priceSvc = svc
	}

	var store storage.EntryStore
	if c.Bool("store") {
		if cfg.ClickHouseAddr == "" {
			return cli.Exit("--store requires clickhouse_addr in the config", 2)
		}
		s, err := storage.NewClickHouseStore(ctx, storage.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("connect to ClickHouse: %v", err), 1)
		}
		defer func() {
			_ = s.Close()
		}()
		store = s
	}

	fetcher := fetch.New(fetch.Config{
		Source:      client,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	builder := ledger.NewBuilder(ledger.BuilderConfig{
		TrackedAddresses: addresses,
		GasForIncoming:   cfg.GasForIncoming,
		Classifier:       cls,
	})

	result, err := pipeline.Run(ctx, pipeline.Options{
		Fetcher:   fetcher,
		Addresses: addresses,
		Range: models.BlockRange{
			Start: c.Uint64("start-block"),
			End:   c.Uint64("end-block"),
		},
		Builder: builder,
		Prices:  priceSvc,
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("import failed: %v", err), 1)
	}

	output := c.String("output")
	if err := export.NewCSV().WriteFile(output, result.Entries); err != nil {
		return cli.Exit(fmt.Sprintf("write %s: %v", output, err), 1)
	}
	logger.WithFields(logrus.Fields{
		"entries": len(result.Entries),
		"output":  output,
	}).Info("wrote CSV export")

	result.ReportWarnings(logger)
	return nil
}

// runWarmPrices pre-fills the price cache for a date range so a later
// export run does not hit the stats API at all.
func runWarmPrices(c *cli.Context) error {
	logger := newLogger(c.Bool("verbose"))

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if cfg.APIKey == "" {
		return cli.Exit("an explorer API key is required: set "+config.EnvAPIKey+" or api_key in the config file", 2)
	}

	from, err := time.Parse("2006-01-02", c.String("from"))
	if err != nil {
		return cli.Exit("invalid --from date, expected YYYY-MM-DD", 2)
	}
	to, err := time.Parse("2006-01-02", c.String("to"))
	if err != nil {
		return cli.Exit("invalid --to date, expected YYYY-MM-DD", 2)
	}
	if to.Before(from) {
		return cli.Exit("--to must not be before --from", 2)
	}

	contracts := []string{""} // ETH
	for _, contract := range c.StringSlice("contract") {
		contract = models.NormalizeAddress(contract)
		if !models.IsHexAddress(contract) {
			return cli.Exit(fmt.Sprintf("invalid contract %q", contract), 2)
		}
		contracts = append(contracts, contract)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newExplorerClient(cfg, logger)
	svc, cleanup, err := newPriceService(ctx, cfg, client, logger)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer cleanup()

	var warmed, failed int
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, contract := range contracts {
			if err := ctx.Err(); err != nil {
				return cli.Exit("interrupted", 1)
			}
			if _, err := svc.Daily(ctx, contract, day); err != nil {
				failed++
				logger.WithError(err).WithField("key", prices.Key(contract, day)).Warn("price warm failed")
				continue
			}
			warmed++
		}
	}

	logger.WithFields(logrus.Fields{
		"warmed": warmed,
		"failed": failed,
	}).Info("price cache warm complete")
	if failed > 0 {
		return cli.Exit("some prices could not be warmed", 1)
	}
	return nil
}

func main() {
	// load .env BEFORE flag parsing reads the environment
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "loaded .env")
	}

	app := &cli.App{
		Name:  "importer",
		Usage: "export Arbitrum transaction history as GnuCash CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML/TOML/JSON config file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "export",
				Usage:  "fetch address history and write a GnuCash CSV",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "address",
						Usage:    "tracked address (repeatable)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "CSV output path",
						Value: "ledger.csv",
					},
					&cli.StringSliceFlag{
						Name:  "labels",
						Usage: "address label mapping file (repeatable, later files win)",
					},
					&cli.StringSliceFlag{
						Name:  "categories",
						Usage: "address category mapping file (repeatable, later files win)",
					},
					&cli.Uint64Flag{
						Name:  "start-block",
						Usage: "first block to include (0 = genesis)",
					},
					&cli.Uint64Flag{
						Name:  "end-block",
						Usage: "last block to include (0 = latest)",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "addresses fetched in parallel",
					},
					&cli.BoolFlag{
						Name:  "gas-for-incoming",
						Usage: "also record gas on transactions received by a tracked address",
					},
					&cli.BoolFlag{
						Name:  "prices",
						Usage: "annotate legs with daily USD prices",
					},
					&cli.BoolFlag{
						Name:  "store",
						Usage: "also persist entries to ClickHouse",
					},
				},
			},
			{
				Name:  "prices",
				Usage: "price cache maintenance",
				Subcommands: []*cli.Command{
					{
						Name:   "warm",
						Usage:  "pre-fetch daily prices for a date range",
						Action: runWarmPrices,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "from",
								Usage:    "first day (YYYY-MM-DD)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "to",
								Usage:    "last day (YYYY-MM-DD)",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "contract",
								Usage: "token contract to warm in addition to ETH (repeatable)",
							},
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
