package httpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/httpreq/component"
)

// Component wraps a Transport with lifecycle management so that it can be
// registered alongside telemetry in a component.Registry.
type Component struct {
	config Config
	opts   []Option

	mu        sync.RWMutex
	transport *Transport
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a transport component. The transport is created in
// Start.
func NewComponent(cfg Config, opts ...Option) *Component {
	cfg.ApplyDefaults()
	return &Component{config: cfg, opts: opts}
}

// Name returns the configured transport name.
func (c *Component) Name() string {
	return c.config.Name
}

// Start creates the transport.
func (c *Component) Start(_ context.Context) error {
	t, err := NewTransport(c.config, c.opts...)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	return nil
}

// Stop closes idle connections and releases the transport.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		c.transport.CloseIdleConnections()
		c.transport = nil
	}
	return nil
}

// Health reports unhealthy until Start succeeds.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name: c.Name(),
		Type: "http-client",
		Details: fmt.Sprintf("retries=%d backoff=%g statuses=%v",
			c.config.MaxRetries, c.config.BackoffFactor, c.config.RetryStatusCodes),
	}
}

// Transport returns the running transport, or nil before Start.
func (c *Component) Transport() *Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// NewBuilder returns a builder on the running transport. It panics if the
// component has not been started.
func (c *Component) NewBuilder() *Builder {
	t := c.Transport()
	if t == nil {
		panic("httpclient: component " + c.Name() + " not started")
	}
	return NewBuilder(t)
}
