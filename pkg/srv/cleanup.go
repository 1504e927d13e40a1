package srv

import "context"

// cleanupService only does work on Shutdown.
type cleanupService struct {
	name    string
	cleanup func() error
}

func (c *cleanupService) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (c *cleanupService) Shutdown(ctx context.Context) error {
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}

func (c *cleanupService) String() string {
	return c.name
}

func NewCleanup(name string, fn func() error) Service {
	return &cleanupService{name: name, cleanup: fn}
}

// Func adapts a blocking function into a Service with no shutdown step.
type Func func(ctx context.Context) error

func (f Func) Start(ctx context.Context) error    { return f(ctx) }
func (f Func) Shutdown(ctx context.Context) error { return nil }
