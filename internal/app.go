// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	router "campus-coin/internal/api"
	"campus-coin/internal/api/handler"
	"campus-coin/internal/config"
	"campus-coin/internal/metrics"
	"campus-coin/internal/notify"
	"campus-coin/internal/repository"
	"campus-coin/internal/repository/jsonfile"
	"campus-coin/internal/repository/memory"
	"campus-coin/internal/repository/postgres"
	"campus-coin/internal/repository/sqlite"
	"campus-coin/internal/service"
	"campus-coin/internal/util"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config  *config.AppConfig
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Storage
	Store repository.Store

	// Notifications
	Hub   *notify.Hub
	Kafka *notify.KafkaPublisher

	// Services
	LedgerService service.LedgerService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration from the environment and initializes all components.
func (app *Application) Initialize(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig initializes all application components from cfg.
func (app *Application) InitializeWithConfig(ctx context.Context, cfg *config.AppConfig) error {
	app.Config = cfg

	// 1. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.", "backend", cfg.StoreBackend)

	// 2. Open the ledger store
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	app.Store = store
	app.Logger.Info("Ledger store opened.", "backend", cfg.StoreBackend)

	// 3. Metrics and notifications
	app.Metrics = metrics.New()
	app.Hub = notify.NewHub(app.Logger, notify.WithClientGauge(app.Metrics.SetWSClients))
	notifiers := notify.Multi{app.Hub}
	if len(cfg.KafkaBrokers) > 0 {
		app.Kafka = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		notifiers = append(notifiers, app.Kafka)
		app.Logger.Info("Kafka event stream enabled.", "topic", cfg.KafkaTopic)
	}

	// 4. Initialize Services
	app.LedgerService = service.NewLedgerService(app.Store, notifiers, app.Metrics, app.Logger, cfg.InitialBalance)
	app.Logger.Info("Services initialized.")

	// 5. Initialize HTTP Handlers and Router
	ledgerHandler := handler.NewLedgerHandler(app.LedgerService, app.Logger)
	var health router.HealthCheck
	if p, ok := app.Store.(repository.Pinger); ok {
		health = p.Ping
	}
	app.HTTPHandler = router.NewRouter(ledgerHandler, app.Hub.ServeWS, health, app.Metrics, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// OpenStore opens the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.NewStore(), nil
	case config.BackendJSONFile:
		store, err := jsonfile.Open(cfg.JSONFilePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var errs []error
	if app.Hub != nil {
		_ = app.Hub.Close()
		app.Logger.Info("WebSocket clients disconnected.")
	}
	if app.Kafka != nil {
		if err := app.Kafka.Close(); err != nil {
			app.Logger.Error("Failed to flush Kafka writer", "error", err)
			errs = append(errs, fmt.Errorf("failed to close kafka writer: %w", err))
		}
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Error("Failed to close ledger store", "error", err)
			errs = append(errs, fmt.Errorf("failed to close ledger store: %w", err))
		} else {
			app.Logger.Info("Ledger store closed.")
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
