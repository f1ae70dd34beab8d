package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExponentialBackoffStrategy_SuccessAfterRetries(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(5, time.Millisecond, 10*time.Millisecond, zap.NewNop())

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExponentialBackoffStrategy_NonRecoverableError(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(5, time.Millisecond, 10*time.Millisecond, nil)

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("execution reverted")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExponentialBackoffStrategy_MaxRetriesExceeded(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, time.Millisecond, 10*time.Millisecond, nil)

	attempts := 0
	cause := errors.New("connection refused")
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, attempts) // 1 initial + 3 retries
}

func TestExponentialBackoffStrategy_ContextCancellation(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(10, 50*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := strategy.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("i/o timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestNewStrategy(t *testing.T) {
	assert.Equal(t, "NoRetry", NewStrategy(Config{Enabled: false, MaxRetries: 3}, nil).Name())
	assert.Equal(t, "NoRetry", NewStrategy(Config{Enabled: true}, nil).Name())
	assert.Equal(t, "ExponentialBackoff", NewStrategy(Config{
		Enabled: true, MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond,
	}, nil).Name())
}

func TestNoRetry_RunsOnce(t *testing.T) {
	attempts := 0
	err := NoRetry{}.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("nonce too low"), false},
		{context.Canceled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRecoverable(tt.err), "%v", tt.err)
	}
}
