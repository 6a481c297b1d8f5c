// Package container wires the portal's components and owns their lifecycle.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/receivables-portal/internal/application/dispatcher"
	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/application/service"
	"github.com/garyjia/receivables-portal/internal/application/workflow"
	"github.com/garyjia/receivables-portal/internal/config"
	"github.com/garyjia/receivables-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receivables-portal/internal/infrastructure/worker"
	"github.com/garyjia/receivables-portal/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config       *config.Config
	logger       *zap.Logger
	startWorkers bool

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	blockchain port.BlockchainClient
	storage    *StorageBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Bill         port.BillRepository
	Notification port.NotificationRepository
	Activity     port.ActivityRepository
	User         port.UserRepository
	Outbox       port.OutboxRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Notification service.NotificationService
	Activity     service.ActivityService
	Query        service.QueryService
	Outbox       service.OutboxProcessor
	Export       service.ExportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures the container
type Option func(*Container)

// WithoutWorkers skips background workers, for one-shot CLI commands.
func WithoutWorkers() Option {
	return func(c *Container) {
		c.startWorkers = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:       cfg,
		logger:       logger,
		startWorkers: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components in dependency order:
// database, external clients, storage, services, dispatcher and engine, workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"storage", c.initStorage},
		{"services", c.initServices},
		{"dispatcher and engine", c.initDispatcherAndEngine},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Drains in-flight outbox deliveries before the database goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.conn = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.conn.PingContext(ctx); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.startWorkers {
		if c.workers == nil {
			set("workers", ComponentHealth{Message: "not initialized"})
		} else {
			set("workers", ComponentHealth{
				Healthy: c.workers.IsRunning(),
				Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
			})
		}
	}

	if c.dispatcher == nil {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	} else {
		set("dispatcher", ComponentHealth{Healthy: true})
	}

	return status
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternalClients(ctx context.Context) error {
	client, err := ProvideBlockchain(&c.config.Blockchain, c.logger)
	if err != nil {
		return err
	}
	c.blockchain = client
	return nil
}

func (c *Container) initStorage(ctx context.Context) error {
	bundle, err := ProvideStorage(&c.config.Exports, c.logger)
	if err != nil {
		return err
	}
	c.storage = bundle
	return nil
}

func (c *Container) initServices(ctx context.Context) error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:       c.repositories,
		Storage:     c.storage,
		Blockchain:  c.blockchain,
		MaxAttempts: c.config.Outbox.MaxAttempts,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initDispatcherAndEngine(ctx context.Context) error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		Services:   c.services,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Lifecycle:  &c.config.Lifecycle,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	if !c.startWorkers {
		return nil
	}

	workers, err := ProvideWorkers(&WorkerDeps{
		Services: c.services,
		Outbox:   &c.config.Outbox,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	return c.workers.StartAll(ctx)
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Migrator returns a migrator bound to the open database.
func (c *Container) Migrator() *database.Migrator {
	return database.NewMigrator(c.conn, c.logger)
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Engine returns the bill lifecycle engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager, nil when workers are disabled.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces
// of the application packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields. An error value
// under any key becomes a zap error field.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
