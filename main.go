package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trade-performance/src/config"
	"trade-performance/src/exchange"
	"trade-performance/src/feed"
	"trade-performance/src/handlers"
	"trade-performance/src/logger"
	"trade-performance/src/models"
	"trade-performance/src/observability"
	"trade-performance/src/rates"
	"trade-performance/src/report"
	"trade-performance/src/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.InitLogger(cfg.Log)
	log := logger.GetLogger()

	log.Info().Msg("Initializing Trade Performance Service")

	metrics := observability.NewMetrics()

	instruments, err := feed.ParseInstruments(cfg.Report.Instruments)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REPORT_INSTRUMENTS")
	}
	location, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REPORT_TIMEZONE")
	}

	client := exchange.NewClient(cfg.Exchange, logger.Component("exchange"), exchange.WithMetrics(metrics))
	exchangeFeed := feed.NewExchangeFeed(client, cfg.Exchange.PageLimit, logger.Component("feed"))

	rateSource, err := newRateSource(cfg, instruments, client, logger.Component("rates"), metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REPORT_FIXED_FEE_RATE")
	}

	var (
		tradeFeed feed.TradeFeed = exchangeFeed
		syncer    handlers.TradeSyncer
		pool      *pgxpool.Pool
	)

	if cfg.Postgres.DSN != "" {
		pool, err = openPool(cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		store := feed.NewStore(pool)

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = store.Migrate(migrateCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate trade store")
		}

		lookback := time.Duration(cfg.Report.LookbackDays) * 24 * time.Hour
		tradeFeed = store
		syncer = feed.NewSyncer(exchangeFeed, store, lookback, logger.Component("sync"), metrics)
		log.Info().Int32("max_conns", cfg.Postgres.MaxConns).Msg("Reports read from Postgres trade store")
	} else {
		log.Info().Msg("Reports read straight from the exchange (POSTGRES_DSN not set)")
	}

	if !cfg.HasExchangeCredentials() {
		log.Warn().Msg("EXCHANGE_API_KEY/EXCHANGE_API_SECRET not set - fetching account trades will fail")
	}

	service := report.NewService(tradeFeed, rateSource, report.Settings{
		Instruments:     instruments,
		FeeAsset:        cfg.Report.FeeAsset,
		LookbackDays:    cfg.Report.LookbackDays,
		MaxLookbackDays: cfg.Report.MaxLookbackDays,
		Location:        location,
		RateTimeout:     cfg.Report.RateTimeout,
	}, logger.Component("report"), metrics)

	performanceHandler := handlers.NewPerformanceHandler(service, syncer, metrics, cfg.App.MetricsMaxLatencies)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(models.ErrorResponse{
				Kind:    "http_error",
				Message: err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, cfg, performanceHandler, metrics)

	port := ":" + cfg.App.Port

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	case <-time.After(100 * time.Millisecond):
		log.Info().
			Str("port", port).
			Strs("instruments", cfg.Report.Instruments).
			Msg("Trade Performance Service started")

		log.Info().
			Strs("endpoints", routes.Endpoints()).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	shutdownTimeout := cfg.App.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", shutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	if pool != nil {
		pool.Close()
	}
	logger.CloseLogger()
}

func openPool(cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// newRateSource pins the fee asset rate for every configured quote when
// REPORT_FIXED_FEE_RATE is set, otherwise asks the exchange ticker.
func newRateSource(cfg *config.Config, instruments []feed.Instrument, client *exchange.Client, log zerolog.Logger, metrics *observability.Metrics) (rates.Source, error) {
	if cfg.Report.FixedFeeRate == "" {
		return rates.NewTickerSource(client, cfg.Report.CrossAsset, log, metrics), nil
	}

	fixed, err := decimal.NewFromString(cfg.Report.FixedFeeRate)
	if err != nil {
		return nil, err
	}
	table := make(map[string]decimal.Decimal, len(instruments))
	for _, inst := range instruments {
		table[strings.ToUpper(cfg.Report.FeeAsset)+"/"+inst.Quote] = fixed
	}
	log.Info().Str("rate", fixed.String()).Msg("Using fixed fee asset rate")
	return rates.NewStaticSource(table), nil
}
