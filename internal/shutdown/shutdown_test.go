package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

type mockComponent struct {
	name          string
	shutdownDelay time.Duration
	shouldFail    bool
	shutdownCount int32
	record        func(string)
}

func (m *mockComponent) Name() string {
	return m.name
}

func (m *mockComponent) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&m.shutdownCount, 1)
	if m.record != nil {
		m.record(m.name)
	}

	select {
	case <-time.After(m.shutdownDelay):
		if m.shouldFail {
			return errors.New("mock shutdown failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockComponent) count() int {
	return int(atomic.LoadInt32(&m.shutdownCount))
}

func newCoordinator(opts ...Option) *Coordinator {
	return NewCoordinator(append([]Option{WithLogger(logger.Discard().Logger)}, opts...)...)
}

// **Feature: graceful-teardown, Property 1: Reverse Registration Order**
// *For any* number of registered components, Shutdown SHALL close each
// exactly once, newest first.
func TestPropertyReverseRegistrationOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("components shut down LIFO exactly once", prop.ForAll(
		func(n int) bool {
			var mu sync.Mutex
			var order []string
			record := func(name string) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}

			c := newCoordinator(WithTimeout(time.Second))
			components := make([]*mockComponent, n)
			for i := range components {
				components[i] = &mockComponent{name: fmt.Sprintf("c%d", i), record: record}
				c.Register(components[i])
			}

			c.Shutdown()
			c.Shutdown()

			if c.ExitCode() != 0 || len(order) != n {
				return false
			}
			for i, comp := range components {
				if comp.count() != 1 || order[n-1-i] != comp.name {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

// **Feature: graceful-teardown, Property 2: Timeout Forces Exit Code 1**
// *For any* component slower than the timeout, Shutdown SHALL return by the
// deadline and report exit code 1.
func TestPropertyTimeoutForcesExit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10

	properties := gopter.NewProperties(parameters)

	properties.Property("slow components are abandoned at the deadline", prop.ForAll(
		func(timeoutMs int64) bool {
			timeout := time.Duration(timeoutMs) * time.Millisecond
			c := newCoordinator(WithTimeout(timeout))
			c.Register(&mockComponent{name: "slow", shutdownDelay: timeout + 500*time.Millisecond})

			start := time.Now()
			c.Shutdown()
			elapsed := time.Since(start)

			return c.ExitCode() == 1 && elapsed < timeout+250*time.Millisecond
		},
		gen.Int64Range(10, 100),
	))

	properties.TestingRun(t)
}

func TestShutdownCollectsErrors(t *testing.T) {
	c := newCoordinator(WithTimeout(time.Second))
	ok := &mockComponent{name: "session-store"}
	bad := &mockComponent{name: "chat-7", shouldFail: true}
	c.Register(ok)
	c.Register(bad)

	c.Shutdown()

	assert.Equal(t, 1, c.ExitCode())
	require.Error(t, c.Err())
	assert.Contains(t, c.Err().Error(), "chat-7")
	assert.Equal(t, 1, ok.count(), "a failure does not stop later components")
}

func TestWaitForSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	c := newCoordinator(WithSignalChannel(sigCh))
	comp := &mockComponent{name: "app"}
	c.Register(comp)

	go c.WaitForSignal(context.Background())
	sigCh <- syscall.SIGTERM
	c.Wait()

	assert.Equal(t, 1, comp.count())
	assert.Equal(t, 0, c.ExitCode())
}

func TestWaitForSignalContextDone(t *testing.T) {
	c := newCoordinator(WithSignalChannel(make(chan os.Signal)))
	comp := &mockComponent{name: "app"}
	c.Register(comp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.WaitForSignal(ctx)

	assert.Equal(t, 1, comp.count())
}

func TestCancelComponent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newCoordinator()
	c.Register(CancelComponent("reader", cancel))

	c.Shutdown()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, c.Err())
}
