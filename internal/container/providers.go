package container

import (
	"fmt"

	"github.com/garyjia/receivables-portal/internal/application/dispatcher"
	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/application/service"
	"github.com/garyjia/receivables-portal/internal/application/workflow"
	"github.com/garyjia/receivables-portal/internal/config"
	"github.com/garyjia/receivables-portal/internal/domain/event"
	"github.com/garyjia/receivables-portal/internal/infrastructure/export"
	"github.com/garyjia/receivables-portal/internal/infrastructure/external/blockchain"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receivables-portal/internal/infrastructure/storage"
	"github.com/garyjia/receivables-portal/internal/infrastructure/worker"
	"github.com/garyjia/receivables-portal/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
	Applied        int
}

// StorageBundle holds export-related components.
type StorageBundle struct {
	Documents port.DocumentStore
	Exporter  port.Exporter
}

// ProvideDatabase opens the SQLite file and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(conn, logger).RunMigrations(sqlite.Migrations, sqlite.MigrationsDir)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
		Applied:        applied,
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Bill:         repository.NewBillRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
		Activity:     repository.NewActivityRepository(db, logger),
		User:         repository.NewUserRepository(db, logger),
		Outbox:       repository.NewOutboxRepository(db, logger),
	}, nil
}

// ProvideBlockchain returns the HTTP deed client when enabled, else a local recorder.
func ProvideBlockchain(cfg *config.BlockchainConfig, logger *zap.Logger) (port.BlockchainClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("blockchain config is required")
	}
	if !cfg.Enabled {
		logger.Info("Blockchain integration disabled, deeds are recorded locally")
		return blockchain.NewLogClient(logger), nil
	}

	return blockchain.NewHTTPClient(blockchain.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Network: cfg.Network,
		Timeout: cfg.Timeout,
	}, logger), nil
}

// ProvideStorage creates the document archive and workbook exporter.
func ProvideStorage(cfg *config.ExportsConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, fmt.Errorf("exports directory is required")
	}

	return &StorageBundle{
		Documents: storage.NewLocalDocumentStore(cfg.Dir, logger),
		Exporter:  export.NewWorkbookExporter(logger),
	}, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	Storage     *StorageBundle
	Blockchain  port.BlockchainClient
	MaxAttempts int
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Blockchain == nil {
		return nil, fmt.Errorf("blockchain client is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	notifications := service.NewNotificationService(deps.Repos.Notification, deps.Repos.User, serviceLogger)
	activity := service.NewActivityService(deps.Repos.Activity, serviceLogger)

	return &ServiceBundle{
		Notification: notifications,
		Activity:     activity,
		Query:        service.NewQueryService(deps.Repos.Bill),
		Outbox: service.NewOutboxProcessor(
			deps.Repos.Outbox,
			deps.Repos.Bill,
			notifications,
			activity,
			deps.Blockchain,
			deps.MaxAttempts,
			serviceLogger,
		),
		Export: service.NewExportService(
			deps.Repos.Bill,
			deps.Storage.Exporter,
			deps.Storage.Documents,
			serviceLogger,
		),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// WorkflowDeps holds dependencies required for creating the lifecycle engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Services   *ServiceBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Lifecycle  *config.LifecycleConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the engine and subscribes the outbox processor
// to the events it publishes after commit.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil || deps.Services == nil {
		return nil, fmt.Errorf("repositories and services are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle config is required")
	}

	engine := workflow.NewEngine(
		deps.Repos.Bill,
		deps.Repos.Outbox,
		deps.TxManager,
		&zapLoggerAdapter{logger: deps.Logger},
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithActivityLogger(deps.Services.Activity),
		workflow.WithAllowedQuarters(deps.Lifecycle.AllowedPaymentQuarters...),
		workflow.WithDefaultCurrency(deps.Lifecycle.DefaultCurrency),
		workflow.WithMaxDiscountRate(deps.Lifecycle.MaxDiscountRateDecimal()),
	)

	deps.Dispatcher.SubscribeNamed(event.TypeBillSubmitted, "outbox_processor", deps.Services.Outbox.HandleEvent)
	deps.Dispatcher.SubscribeNamed(event.TypeBillTransitioned, "outbox_processor", deps.Services.Outbox.HandleEvent)

	return engine, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services *ServiceBundle
	Outbox   *config.OutboxConfig
	Logger   *zap.Logger
}

// ProvideWorkers creates the worker manager with every worker registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(deps.Logger)
	manager.Register(worker.NewOutboxWorker(worker.OutboxWorkerConfig{
		PollInterval:   deps.Outbox.PollInterval,
		BatchSize:      deps.Outbox.BatchSize,
		ProcessTimeout: deps.Outbox.ProcessTimeout,
	}, deps.Services.Outbox, deps.Logger))

	return manager, nil
}
