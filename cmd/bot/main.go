// Package main provides the entry point for the dutching bot.
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

	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/config"
	"github.com/yourusername/dutch-better/internal/database"
	"github.com/yourusername/dutch-better/internal/engine"
	"github.com/yourusername/dutch-better/internal/exchange"
	"github.com/yourusername/dutch-better/internal/health"
	"github.com/yourusername/dutch-better/internal/history"
	"github.com/yourusername/dutch-better/internal/httpx"
	"github.com/yourusername/dutch-better/internal/logger"
	"github.com/yourusername/dutch-better/internal/metrics"
	"github.com/yourusername/dutch-better/internal/scheduler"
)

func main() {
	configPath := os.Getenv("DUTCH_BETTER_CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.ValidateEnvironment(cfg); err != nil {
		log.Fatalf("Invalid configuration for environment: %v", err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment":  cfg.App.Environment,
		"log_level":    cfg.App.LogLevel,
		"mode":         cfg.Exchange.Mode,
		"live_betting": cfg.Features.LiveBettingEnabled,
	}).Info("Dutch Better starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// History persistence: PostgreSQL when enabled, in-memory otherwise
	var (
		store history.Store
		db    *database.DB
	)
	if cfg.Database.Enabled {
		db, err = database.Initialize(ctx, cfg)
		if err != nil {
			appLog.WithError(err).Fatal("Failed to initialize database")
		}
		defer db.Close()
		store = history.NewPostgresStore(db)
		appLog.Info("Database connection established")
	} else {
		store = history.NewMemoryStore()
		appLog.Info("Database disabled, keeping history in memory")
	}

	// Exchange client selection
	var (
		client  exchange.Client
		orders  exchange.OrderPlacer
		stream  *exchange.PriceStream
		session health.SessionChecker
	)

	if cfg.IsLive() {
		httpClient := httpx.NewClient(httpx.ClientConfig{
			Timeout:           cfg.ExchangeTimeout(),
			MaxRetries:        cfg.Exchange.MaxRetries,
			RetryWaitMin:      100 * time.Millisecond,
			RetryWaitMax:      10 * time.Second,
			RateLimit:         cfg.Exchange.RateLimit,
			CircuitBreakerMax: 5,
		}, appLog)
		defer httpClient.Close()

		betfairClient := exchange.NewBetfairClient(&cfg.Exchange, httpClient, appLog)
		auth := exchange.NewAuthService(betfairClient, appLog)

		if err := auth.Login(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to login to exchange")
		}
		defer func() {
			if err := auth.Logout(context.Background()); err != nil {
				appLog.WithError(err).Error("Failed to logout from exchange")
			}
		}()
		go auth.KeepAlive(ctx, time.Hour)

		appLog.Info("Exchange client initialized and logged in")

		client = betfairClient
		orders = betfairClient
		session = betfairClient

		if cfg.Features.StreamPricesEnabled {
			stream = exchange.NewPriceStream(
				betfairClient.GetSessionToken(),
				cfg.Exchange.AppKey,
				cfg.Exchange.StreamURL,
				appLog,
			)
			if err := stream.Connect(ctx); err != nil {
				appLog.WithError(err).Warn("Price stream unavailable, using polled prices")
				stream = nil
			} else {
				defer stream.Close()
			}
		}
	} else {
		dummy := exchange.NewDummyClient(cfg.Strategy.StartingBank, appLog)
		client = dummy
		orders = exchange.NewLoggingOrderPlacer(appLog)
		appLog.Info("Dummy exchange initialized")
	}

	// Cache the read path; settlement status stays uncached inside
	cached := exchange.NewCachedClient(
		client,
		time.Duration(cfg.Exchange.PriceCacheSeconds)*time.Second,
		appLog,
	)

	// Progression engine
	settings := engine.Settings{
		MinFavouriteOdds: cfg.Strategy.MinFavouriteOdds,
		MaxFavouriteOdds: cfg.Strategy.MaxFavouriteOdds,
		TargetProfit:     cfg.Strategy.TargetProfit,
		MaxDailyLoss:     cfg.Strategy.MaxDailyLoss,
		StakePercent:     cfg.Strategy.StakePercent,
		SecondsBeforeOff: cfg.Scheduler.SecondsBeforeOff,
	}
	eng := engine.New(settings, cfg.Strategy.StartingBank, cached, store, appLog)

	// Race runner and daily planner
	runner := scheduler.NewRunner(eng, cached, orders, stream, scheduler.Config{
		SecondsBeforeOff:  cfg.Scheduler.SecondsBeforeOff,
		TickInterval:      cfg.TickInterval(),
		SettlementTimeout: cfg.SettlementTimeout(),
		LiveBetting:       cfg.Features.LiveBettingEnabled,
	}, appLog)

	planner := scheduler.NewDayPlanner(eng, cached, runner, stream, appLog)
	if err := planner.Schedule(cfg.Scheduler.DailyCron); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule daily run")
	}
	if err := planner.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start day planner")
	}
	appLog.WithField("next_run", planner.NextRun()).Info("Day planner running")

	// Metrics endpoint
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			appLog.WithField("port", cfg.Metrics.Port).Info("Metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Metrics server error")
			}
		}()
	}

	// Health endpoints
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Port:        fmt.Sprintf("%d", cfg.Health.Port),
		Logger:      appLog,
		DB:          dbPinger(db),
		Session:     session,
		Engine:      eng,
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	// Optionally kick off today's card immediately instead of waiting for cron
	if os.Getenv("RUN_DAY_NOW") == "true" {
		go func() {
			if err := planner.RunDay(ctx); err != nil {
				appLog.WithError(err).Error("Immediate daily run failed")
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")

	// Graceful shutdown
	healthServer.SetReady(false)
	cancel()

	if err := planner.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping day planner")
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Error stopping metrics server")
		}
		shutdownCancel()
	}

	// Give components time to cleanup
	time.Sleep(2 * time.Second)

	appLog.Info("Dutch Better shut down")
}

// dbPinger avoids a typed-nil interface when the database is disabled
func dbPinger(db *database.DB) health.DatabasePinger {
	if db == nil {
		return nil
	}
	return db
}
