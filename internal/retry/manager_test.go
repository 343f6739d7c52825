package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
)

// countingSleeper records requested waits without actually sleeping.
type countingSleeper struct {
	waits []time.Duration
}

func (s *countingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func genRetryableError() gopter.Gen {
	return gen.OneConstOf(
		"dial tcp 127.0.0.1:8000: connect: connection refused",
		"read: connection reset by peer",
		"websocket: close 1006 (abnormal closure): unexpected EOF",
		"i/o timeout",
		"websocket: bad handshake",
	).Map(func(msg string) error {
		return errors.New(msg)
	})
}

// **Feature: chat-reconnect, Property 1: Retry Termination**
// For any strategy with MaxAttempts = N and an operation that always fails
// with a retryable error, the operation runs exactly N times with N-1 fixed
// waits between runs, then reports exhaustion.
func TestRetryTermination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("always-failing operation runs exactly MaxAttempts times", prop.ForAll(
		func(maxAttempts int, backoffMs int, cause error) bool {
			sleeper := &countingSleeper{}
			backoff := time.Duration(backoffMs) * time.Millisecond
			m := NewManager(
				WithStrategy(&Strategy{MaxAttempts: maxAttempts, BackoffDuration: backoff, RetryableErrors: retryableErrorPatterns}),
				WithSleeper(sleeper.sleep),
			)

			calls := 0
			err := m.Do(context.Background(), "chat:1", func(ctx context.Context, attempt int) error {
				calls++
				if attempt != calls {
					return errors.New("attempt numbering out of order")
				}
				return cause
			})

			if calls != maxAttempts || !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, cause) {
				return false
			}
			if len(sleeper.waits) != maxAttempts-1 {
				return false
			}
			for _, w := range sleeper.waits {
				if w != backoff {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 3000),
		genRetryableError(),
	))

	properties.Property("success clears the attempt history", prop.ForAll(
		func(failures int) bool {
			m := NewManager(WithSleeper((&countingSleeper{}).sleep))
			calls := 0
			err := m.Do(context.Background(), "chat:2", func(ctx context.Context, attempt int) error {
				calls++
				if calls <= failures {
					return errors.New("connection refused")
				}
				return nil
			})
			return err == nil && calls == failures+1 && len(m.GetAttempts("chat:2")) == 0
		},
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	sleeper := &countingSleeper{}
	m := NewManager(WithSleeper(sleeper.sleep))

	calls := 0
	err := m.Do(context.Background(), "k", func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.ErrNotAuthorized
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonRetryableError)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestDo_TransportKindIsRetryable(t *testing.T) {
	m := NewManager(WithStrategy(&Strategy{MaxAttempts: 2}), WithSleeper((&countingSleeper{}).sleep))

	calls := 0
	err := m.Do(context.Background(), "k", func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.Transport(errors.New("weird"))
	})

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(WithStrategy(&Strategy{MaxAttempts: 5, BackoffDuration: time.Hour, RetryableErrors: retryableErrorPatterns}))

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- m.Do(ctx, "k", func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("connection refused")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDo_NotificationCallback(t *testing.T) {
	var notes []*Notification
	m := NewManager(
		WithStrategy(&Strategy{MaxAttempts: 3, BackoffDuration: time.Second, RetryableErrors: retryableErrorPatterns}),
		WithSleeper((&countingSleeper{}).sleep),
		WithNotificationCallback(func(n *Notification) { notes = append(notes, n) }),
	)

	_ = m.Do(context.Background(), "chat:9", func(ctx context.Context, attempt int) error {
		return errors.New("broken pipe")
	})

	require.Len(t, notes, 2)
	assert.Equal(t, 1, notes[0].AttemptNumber)
	assert.Equal(t, 3, notes[0].MaxAttempts)
	assert.Equal(t, "chat:9", notes[1].Key)
}

func TestDo_RequiresKey(t *testing.T) {
	err := NewManager().Do(context.Background(), "", func(ctx context.Context, attempt int) error { return nil })
	assert.ErrorIs(t, err, ErrKeyRequired)
}

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()
	assert.Equal(t, 5, s.MaxAttempts)
	assert.Equal(t, 2*time.Second, s.BackoffDuration)
}
