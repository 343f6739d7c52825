// Package retry provides bounded retry with a fixed backoff for transport operations.
package retry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
)

// Retryable error patterns that indicate a transport operation may succeed if repeated.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"no such host",
	"network is unreachable",
	"unexpected eof",
	"abnormal closure",
	"going away",
	"bad handshake",
	"service unreachable",
}

// Attempt records a single attempt.
type Attempt struct {
	AttemptNumber int        `json:"attempt_number"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

// Strategy defines retry behavior.
type Strategy struct {
	MaxAttempts     int           `json:"max_attempts"`
	RetryableErrors []string      `json:"retryable_errors"`
	BackoffDuration time.Duration `json:"backoff_duration"` // fixed wait between attempts
}

// DefaultStrategy returns the chat reconnect strategy: 5 attempts, 2 seconds apart.
func DefaultStrategy() *Strategy {
	return &Strategy{
		MaxAttempts:     5,
		RetryableErrors: retryableErrorPatterns,
		BackoffDuration: 2 * time.Second,
	}
}

// Notification describes a failed attempt that will be retried.
type Notification struct {
	Key           string        `json:"key"`
	AttemptNumber int           `json:"attempt_number"`
	MaxAttempts   int           `json:"max_attempts"`
	Reason        string        `json:"reason"`
	NextIn        time.Duration `json:"next_in"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Manager tracks attempts per key and runs operations under a Strategy.
type Manager struct {
	mu       sync.Mutex
	strategy *Strategy
	attempts map[string][]Attempt
	sleep    func(ctx context.Context, d time.Duration) error
	// NotificationCallback is called before each wait between attempts.
	NotificationCallback func(notification *Notification)
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithStrategy sets a custom retry strategy.
func WithStrategy(strategy *Strategy) ManagerOption {
	return func(m *Manager) {
		m.strategy = strategy
	}
}

// WithNotificationCallback sets the callback for retry notifications.
func WithNotificationCallback(callback func(*Notification)) ManagerOption {
	return func(m *Manager) {
		m.NotificationCallback = callback
	}
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

// NewManager creates a new retry manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		strategy: DefaultStrategy(),
		attempts: make(map[string][]Attempt),
		sleep:    Sleep,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// strategy's attempts are used up. Attempts for key are cleared on success.
func (m *Manager) Do(ctx context.Context, key string, fn func(ctx context.Context, attempt int) error) error {
	if key == "" {
		return ErrKeyRequired
	}

	for {
		attemptNumber := len(m.GetAttempts(key)) + 1
		started := time.Now()
		err := fn(ctx, attemptNumber)
		completed := time.Now()

		attempt := Attempt{
			AttemptNumber: attemptNumber,
			StartedAt:     started,
			CompletedAt:   &completed,
			Success:       err == nil,
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		m.RecordAttempt(key, attempt)

		if err == nil {
			m.ClearAttempts(key)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.IsRetryableError(err) {
			return fmt.Errorf("%w: %w", ErrNonRetryableError, err)
		}
		if !m.ShouldRetry(key, err) {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, attemptNumber, err)
		}

		m.notify(key, attemptNumber, err)
		if serr := m.sleep(ctx, m.strategy.BackoffDuration); serr != nil {
			return serr
		}
	}
}

// ShouldRetry determines if a failed operation for key should be attempted again.
func (m *Manager) ShouldRetry(key string, err error) bool {
	if err == nil {
		return false
	}
	if len(m.GetAttempts(key)) >= m.strategy.MaxAttempts {
		return false
	}
	return m.IsRetryableError(err)
}

func (m *Manager) notify(key string, attemptNumber int, err error) {
	if m.NotificationCallback == nil {
		return
	}

	m.NotificationCallback(&Notification{
		Key:           key,
		AttemptNumber: attemptNumber,
		MaxAttempts:   m.strategy.MaxAttempts,
		Reason:        err.Error(),
		NextIn:        m.strategy.BackoffDuration,
		Timestamp:     time.Now(),
	})
}

// RecordAttempt records an attempt for key.
func (m *Manager) RecordAttempt(key string, attempt Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[key] = append(m.attempts[key], attempt)
}

// GetAttempts returns a copy of the recorded attempts for key.
func (m *Manager) GetAttempts(key string) []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, len(m.attempts[key]))
	copy(out, m.attempts[key])
	return out
}

// ClearAttempts clears all recorded attempts for key.
func (m *Manager) ClearAttempts(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
}

// GetBackoffDuration returns the wait between attempts.
func (m *Manager) GetBackoffDuration() time.Duration {
	return m.strategy.BackoffDuration
}

// GetMaxAttempts returns the maximum number of attempts.
func (m *Manager) GetMaxAttempts() int {
	return m.strategy.MaxAttempts
}

// IsRetryableError reports whether err is a transport failure or matches a retryable pattern.
func (m *Manager) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsKind(err, apperrors.KindTransport) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range m.strategy.RetryableErrors {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
