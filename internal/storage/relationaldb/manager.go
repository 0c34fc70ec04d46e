package relationaldb

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the narrow logging seam of the storage layer. The caller
// injects an adapter (zerolog in the daemon); the package itself stays
// free of a concrete logging dependency.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// nopLogger is the default when no adapter is injected.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

// Metrics receives storage lifecycle and retry events. The daemon
// injects a prometheus adapter; tags are advisory.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	SetGauge(name string, value float64, tags map[string]string)
}

// NoOpMetrics discards all events.
type NoOpMetrics struct{}

func (NoOpMetrics) IncrementCounter(string, map[string]string) {}
func (NoOpMetrics) RecordDuration(string, time.Duration, map[string]string) {}
func (NoOpMetrics) SetGauge(string, float64, map[string]string) {}

// Manager owns the lifecycle of a repository manager: it opens the
// connection, keeps a periodic health check and a maintenance loop
// running, and offers retry helpers for transient failures.
type Manager struct {
	repos   RepositoryManager
	config  *Config
	logger  Logger
	metrics Metrics

	healthInterval      time.Duration
	maintenanceInterval time.Duration

	mu        sync.RWMutex
	connected bool
	lastErr   error

	loopCancel context.CancelFunc
	loopWg     sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger injects the logging adapter.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics injects the metrics adapter.
func WithMetrics(metrics Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHealthCheckInterval overrides the periodic ping interval.
func WithHealthCheckInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) { m.healthInterval = interval }
}

// WithMaintenanceInterval overrides the maintenance loop interval.
func WithMaintenanceInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) { m.maintenanceInterval = interval }
}

// NewManager wraps a repository manager with lifecycle management.
func NewManager(repos RepositoryManager, config *Config, options ...ManagerOption) *Manager {
	m := &Manager{
		repos:               repos,
		config:              config,
		logger:              nopLogger{},
		metrics:             NoOpMetrics{},
		healthInterval:      time.Minute,
		maintenanceInterval: time.Hour,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Open connects, verifies the connection with a ping and starts the
// background loops. Calling Open on a connected manager is a no-op.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	if err := m.repos.Open(ctx); err != nil {
		m.lastErr = err
		m.logger.Error("opening database failed", "error", err)
		m.metrics.IncrementCounter("connection_open_failed", nil)
		return WrapError(err, "open_database")
	}
	if err := m.repos.System().Ping(ctx); err != nil {
		_ = m.repos.Close(ctx)
		m.lastErr = err
		m.logger.Error("initial ping failed", "error", err)
		m.metrics.IncrementCounter("health_check_failed", nil)
		return WrapError(err, "initial_health_check")
	}

	m.connected = true
	m.lastErr = nil

	loopCtx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	m.startLoop(loopCtx, m.healthInterval, 10*time.Second, func(ctx context.Context) {
		if err := m.HealthCheck(ctx); err != nil {
			m.logger.Error("periodic health check failed", "error", err)
		}
	})
	m.startLoop(loopCtx, m.maintenanceInterval, 5*time.Minute, m.maintain)

	m.logger.Info("database opened", "host", m.config.Host, "database", m.config.Database)
	m.metrics.IncrementCounter("connection_opened", nil)
	return nil
}

// Close stops the background loops and closes the connection. Calling
// Close on a closed manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	if m.loopCancel != nil {
		m.loopCancel()
		m.loopWg.Wait()
		m.loopCancel = nil
	}

	if err := m.repos.Close(ctx); err != nil {
		m.logger.Error("closing database failed", "error", err)
		m.metrics.IncrementCounter("connection_close_failed", nil)
		return WrapError(err, "close_database")
	}

	m.connected = false
	m.lastErr = nil
	m.logger.Info("database closed")
	m.metrics.IncrementCounter("connection_closed", nil)
	return nil
}

// IsConnected reports whether Open has succeeded and Close has not run.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// LastError returns the most recent connection or ping error.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// HealthCheck pings the database and records the outcome.
func (m *Manager) HealthCheck(ctx context.Context) error {
	started := time.Now()
	defer func() {
		m.metrics.RecordDuration("health_check", time.Since(started), nil)
	}()

	if !m.IsConnected() {
		m.metrics.IncrementCounter("health_check_failed", nil)
		return ErrDatabaseClosed
	}

	if err := m.repos.System().Ping(ctx); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.metrics.IncrementCounter("health_check_failed", nil)
		return WrapError(err, "health_check")
	}

	m.metrics.IncrementCounter("health_check_ok", nil)
	return nil
}

// ExecuteWithRetry runs operation, retrying retryable failures up to
// MaxRetries times with linear backoff capped at RetryMaxDelay.
func (m *Manager) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * m.config.RetryDelay
			if delay > m.config.RetryMaxDelay {
				delay = m.config.RetryMaxDelay
			}
			m.logger.Debug("retrying operation", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		started := time.Now()
		err := operation()
		m.metrics.RecordDuration("operation", time.Since(started), map[string]string{
			"attempt": fmt.Sprintf("%d", attempt),
		})

		if err == nil {
			if attempt > 0 {
				m.logger.Info("operation succeeded after retry", "attempt", attempt)
				m.metrics.IncrementCounter("retry_success", nil)
			}
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			m.metrics.IncrementCounter("non_retryable_error", nil)
			break
		}
		m.logger.Debug("retryable failure", "error", err, "attempt", attempt)
		m.metrics.IncrementCounter("retryable_error", nil)
	}

	m.logger.Error("operation failed", "attempts", m.config.MaxRetries+1, "error", lastErr)
	m.metrics.IncrementCounter("retries_exhausted", nil)
	return WrapError(lastErr, "execute_with_retry")
}

// ExecuteInTransaction runs operation inside a transaction, retrying
// the whole transaction on retryable failures (serialization conflicts,
// dropped connections).
func (m *Manager) ExecuteInTransaction(ctx context.Context, operation func(TransactionContext) error) error {
	return m.ExecuteWithRetry(ctx, func() error {
		return m.repos.WithTransaction(ctx, operation)
	})
}

// GetRepositoryManager exposes the wrapped repository manager.
func (m *Manager) GetRepositoryManager() RepositoryManager {
	return m.repos
}

// GetConfig returns the connection configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// startLoop runs tick every interval with the given per-tick timeout
// until the loop context is cancelled.
func (m *Manager) startLoop(ctx context.Context, interval, timeout time.Duration, tick func(context.Context)) {
	m.loopWg.Add(1)
	go func() {
		defer m.loopWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				tick(tickCtx)
				cancel()
			}
		}
	}()
}

// maintain verifies the ledger invariant and refreshes usage gauges.
// Every transaction moves money between two accounts, so the balances
// of all accounts must sum to zero at any time.
func (m *Manager) maintain(ctx context.Context) {
	started := time.Now()
	defer func() {
		m.metrics.RecordDuration("maintenance", time.Since(started), nil)
	}()

	if sum, err := m.repos.Ledger().SumBalances(ctx); err != nil {
		m.logger.Error("summing account balances failed", "error", err)
	} else if !sum.IsZero() {
		m.logger.Error("ledger accounts out of balance", "sum", sum.String())
		m.metrics.IncrementCounter("ledger_imbalance", nil)
	}

	if kbUsed, err := m.repos.System().DatabaseSizeKB(ctx); err != nil {
		m.logger.Error("reading database usage failed", "error", err)
	} else {
		m.metrics.SetGauge("space_used_kb", float64(kbUsed), nil)
	}
}
