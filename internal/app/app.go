// Package app wires configuration into the services shared by the server
// and the cron runner.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/payment"
	"toolshed-backend/internal/repository/postgres"
	"toolshed-backend/internal/service"
	"toolshed-backend/internal/settings"
	"toolshed-backend/internal/storage"
)

// App holds the constructed services and the resources they own.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Storage  storage.StorageInterface
	Bookings service.BookingService
	Disputes service.DisputeService
	Evidence service.EvidenceService
	Ledger   service.LedgerService

	closers []func() error
}

// New connects to Postgres, applies migrations and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	a := &App{Config: cfg, DB: db, closers: []func() error{db.Close}}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if err := postgres.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		a.Close()
		return nil, err
	}

	store := postgres.NewStore(db)

	resolver, err := a.settingsResolver(store)
	if err != nil {
		a.Close()
		return nil, err
	}

	storageService, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = storageService
	logger.Info("Evidence storage ready", "type", cfg.Storage.Type)

	deps := &service.Dependencies{
		Store:          store,
		Settings:       resolver,
		Payments:       a.paymentProvider(),
		Notifier:       a.notifier(),
		Storage:        storageService,
		PlatformUserID: cfg.Marketplace.PlatformUserID,
		Currency:       cfg.Payment.Currency,
	}

	a.Bookings = service.NewBookingService(deps)
	a.Disputes = service.NewDisputeService(deps)
	a.Evidence = service.NewEvidenceService(deps, a.Disputes, cfg.Storage)
	a.Ledger = service.NewLedgerService(store, cfg.Payment.Currency)
	return a, nil
}

// settingsResolver layers the configured backend over the config defaults.
func (a *App) settingsResolver(store *postgres.Store) (settings.Resolver, error) {
	cfg := a.Config
	defaults := settings.Static(cfg.SettingsDefaults())

	switch cfg.Settings.Backend {
	case "postgres":
		logger.Info("Runtime settings from postgres", "cache_ttl", cfg.Settings.CacheTTL)
		src := settings.NewCached(postgres.NewSettingsRepository(store.DB()), cfg.Settings.CacheTTL)
		return settings.NewResolver(settings.Chain{src, defaults}), nil
	case "redis":
		client, err := settings.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		logger.Info("Runtime settings from redis", "key", cfg.Redis.Key, "cache_ttl", cfg.Settings.CacheTTL)
		src := settings.NewCached(settings.NewRedisSource(client, cfg.Redis.Key), cfg.Settings.CacheTTL)
		return settings.NewResolver(settings.Chain{src, defaults}), nil
	}
	return settings.NewResolver(defaults), nil
}

func (a *App) paymentProvider() payment.Provider {
	if a.Config.Payment.Provider == "stripe" {
		logger.Info("Using Stripe payment provider")
		return payment.NewStripeProvider(a.Config.Payment.StripeKey)
	}
	logger.Warn("Using no-op payment provider, no money will move")
	return payment.NewNoop()
}

func (a *App) notifier() notifier.Notifier {
	if len(a.Config.Kafka.Brokers) == 0 {
		logger.Info("Kafka brokers not configured, notifications are logged")
		return notifier.NewLog()
	}
	k := notifier.NewKafka(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
	a.closers = append(a.closers, k.Close)
	logger.Info("Publishing notifications to Kafka", "brokers", a.Config.Kafka.Brokers, "topic", a.Config.Kafka.Topic)
	return k
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
