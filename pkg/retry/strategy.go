// Package retry re-runs idempotent operations that fail with transient errors.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Strategy defines the interface for retry strategies
type Strategy interface {
	// Execute runs the operation with the configured retry logic
	Execute(ctx context.Context, operation Operation) error

	// Name returns the name of the strategy for logging
	Name() string
}

// Operation is a unit of work that can be retried.
// It must be safe to run more than once.
type Operation func(ctx context.Context) error

// Config selects and tunes a strategy
type Config struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewStrategy creates a retry strategy based on configuration
func NewStrategy(cfg Config, logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled || cfg.MaxRetries == 0 {
		logger.Debug("Retry disabled")
		return NoRetry{}
	}

	logger.Debug("Retry enabled",
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_delay", cfg.InitialDelay),
		zap.Duration("max_delay", cfg.MaxDelay),
	)
	return NewExponentialBackoffStrategy(cfg.MaxRetries, cfg.InitialDelay, cfg.MaxDelay, logger)
}

// NoRetry runs the operation exactly once
type NoRetry struct{}

func (NoRetry) Execute(ctx context.Context, operation Operation) error {
	return operation(ctx)
}

func (NoRetry) Name() string {
	return "NoRetry"
}
