package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExponentialBackoffStrategy implements retry with exponential backoff
type ExponentialBackoffStrategy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *zap.Logger
}

// NewExponentialBackoffStrategy creates a new ExponentialBackoffStrategy
func NewExponentialBackoffStrategy(maxRetries int, initialDelay, maxDelay time.Duration, logger *zap.Logger) *ExponentialBackoffStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &ExponentialBackoffStrategy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		logger:       logger,
	}
}

// Execute runs the operation, retrying recoverable failures with a doubling
// delay capped at maxDelay
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, operation Operation) error {
	var lastErr error
	delay := s.initialDelay

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt+1),
					zap.Int("max_attempts", s.maxRetries+1),
				)
			}
			return nil
		}

		lastErr = err

		if ctx.Err() != nil || !IsRecoverable(err) {
			return err
		}

		if attempt >= s.maxRetries {
			break
		}

		s.logger.Warn("Operation failed, retrying with exponential backoff",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.maxRetries+1),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

// Network errors that are typically recoverable
var recoverablePatterns = []string{
	"connection reset by peer",
	"connection refused",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"i/o timeout",
	"eof",
	"tls handshake timeout",
	"no such host",
	"connection timed out",
	"dial tcp",
	"too many requests",
	"502 bad gateway",
	"503 service unavailable",
}

// IsRecoverable reports whether err is transient and worth retrying.
// Context cancellation is never recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
