package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestVault_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 5*time.Second, cfg.MaxBackoff)
	require.Nil(t, cfg.Clock)
}

func TestVault_Retry_Do(t *testing.T) {
	t.Parallel()

	t.Run("success on first attempt", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("node is behind by 42 slots")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("exhausts all attempts and wraps last error", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		originalErr := errors.New("connection reset")
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return originalErr
		})
		require.ErrorIs(t, err, originalErr)
		require.Contains(t, err.Error(), "failed after 3 attempts")
		require.Equal(t, 3, attempts)
	})

	t.Run("non-retryable error returned as is", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		originalErr := errors.New("account discriminator mismatch")
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return originalErr
		})
		require.Equal(t, originalErr, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("context cancellation stops the loop", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cfg := Config{MaxAttempts: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}

		attempts := 0
		err := Do(ctx, cfg, func() error {
			attempts++
			cancel()
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	})

	t.Run("waits on the configured clock", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		cfg := Config{MaxAttempts: 2, BaseBackoff: time.Second, MaxBackoff: time.Minute, Clock: clock}

		attempts := 0
		done := make(chan error, 1)
		go func() {
			done <- Do(context.Background(), cfg, func() error {
				attempts++
				if attempts == 1 {
					return errors.New("too many requests")
				}
				return nil
			})
		}()

		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(2 * time.Second)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("retry did not resume after clock advance")
		}
		require.Equal(t, 2, attempts)
	})
}

func TestVault_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, want: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), want: true},
		{name: "EOF", err: errors.New("EOF"), want: true},
		{name: "rate limit", err: errors.New("rate limit exceeded"), want: true},
		{name: "node behind", err: errors.New("RPC error: Node is behind by 120 slots"), want: true},
		{name: "min context slot", err: errors.New("Minimum context slot has not been reached"), want: true},
		{name: "429", err: &httpError{statusCode: http.StatusTooManyRequests}, want: true},
		{name: "503", err: &httpError{statusCode: http.StatusServiceUnavailable}, want: true},
		{name: "400", err: &httpError{statusCode: http.StatusBadRequest}, want: false},
		{name: "not found", err: errors.New("not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestVault_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		minExp  time.Duration
		maxExp  time.Duration
	}{
		{name: "first retry", base: 500 * time.Millisecond, max: 5 * time.Second, attempt: 1, minExp: 500 * time.Millisecond, maxExp: time.Second},
		{name: "second retry", base: 500 * time.Millisecond, max: 5 * time.Second, attempt: 2, minExp: time.Second, maxExp: 2 * time.Second},
		{name: "capped before jitter", base: 500 * time.Millisecond, max: 5 * time.Second, attempt: 4, minExp: 2500 * time.Millisecond, maxExp: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 10; i++ {
				got := calculateBackoff(tt.base, tt.max, tt.attempt)
				require.GreaterOrEqual(t, got, tt.minExp)
				require.LessOrEqual(t, got, tt.maxExp)
			}
		})
	}
}

// httpError implements StatusCode() for testing HTTP error detection.
type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return http.StatusText(e.statusCode)
}

func (e *httpError) StatusCode() int {
	return e.statusCode
}
