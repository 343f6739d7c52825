package shutdown

import "context"

// FuncComponent wraps a shutdown function as a component.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{
		name: name,
		fn:   fn,
	}
}

// Name returns the component name.
func (c *FuncComponent) Name() string {
	return c.name
}

// Shutdown calls the wrapped function.
func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}

// CancelComponent cancels a context at shutdown, stopping whatever runs under it.
func CancelComponent(name string, cancel context.CancelFunc) *FuncComponent {
	return NewFuncComponent(name, func(context.Context) error {
		cancel()
		return nil
	})
}
