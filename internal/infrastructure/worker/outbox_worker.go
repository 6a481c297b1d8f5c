package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OutboxRetrier re-delivers outbox entries that have not succeeded yet
type OutboxRetrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// OutboxWorkerConfig holds configuration for the outbox retry worker
type OutboxWorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	ProcessTimeout time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval:   10 * time.Second,
		BatchSize:      20,
		ProcessTimeout: 30 * time.Second,
	}
}

// OutboxStats is a snapshot of the worker's progress
type OutboxStats struct {
	Running   bool
	Polls     int
	Retried   int
	Failures  int
	LastPoll  time.Time
	LastError error
	StartedAt time.Time
}

// OutboxWorker periodically retries outbox entries left pending or failed
type OutboxWorker struct {
	config  OutboxWorkerConfig
	retrier OutboxRetrier
	logger  *zap.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   OutboxStats
}

// NewOutboxWorker creates a new outbox retry worker
func NewOutboxWorker(config OutboxWorkerConfig, retrier OutboxRetrier, logger *zap.Logger) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}
	return &OutboxWorker{
		config:  config,
		retrier: retrier,
		logger:  logger,
	}
}

// Start begins the polling loop
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("outbox worker already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.stats.StartedAt = time.Now()

	w.logger.Info("OutboxWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight poll to finish
func (w *OutboxWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("OutboxWorker stopped",
		zap.Int("retried", stats.Retried),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name for identification
func (w *OutboxWorker) Name() string {
	return "OutboxWorker"
}

// Stats returns a snapshot of the worker's counters
func (w *OutboxWorker) Stats() OutboxStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.stats
	s.Running = w.running
	return s
}

func (w *OutboxWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Outbox poll loop context cancelled")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single retry pass bounded by the process timeout
func (w *OutboxWorker) RunOnce(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, w.config.ProcessTimeout)
	defer cancel()

	retried, err := w.retrier.RetryPending(pollCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Polls++
	w.stats.Retried += retried
	w.stats.LastPoll = time.Now()
	w.stats.LastError = err
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("Outbox retry pass had failures",
			zap.Int("retried", retried),
			zap.Error(err))
		return
	}
	if retried > 0 {
		w.logger.Info("Outbox retry pass completed", zap.Int("retried", retried))
	}
}
