package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/httpreq/component"
	"github.com/kbukum/httpreq/httpclient"
	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/observability"
	"github.com/kbukum/httpreq/version"
)

// DefaultGracefulTimeout bounds Shutdown unless WithGracefulTimeout is given.
const DefaultGracefulTimeout = 15 * time.Second

// Client owns the telemetry and transport components of one configured
// HTTP client and drives their lifecycle.
type Client struct {
	Name       string
	Settings   Settings
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	telemetry *observability.Telemetry
	transport *httpclient.Component

	gracefulTimeout time.Duration
	summaryOut      io.Writer

	onStart []Hook
	onStop  []Hook
}

// New validates settings, initializes the logger and registers the
// telemetry and transport components. Nothing is started yet.
func New(settings Settings, opts ...Option) (*Client, error) {
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)

	c := &Client{
		Name:            settings.Name,
		Settings:        settings,
		Components:      component.NewRegistry(),
		Summary:         NewSummary(settings.Name, version.GetShortVersion()),
		gracefulTimeout: DefaultGracefulTimeout,
		summaryOut:      o.summary,
	}
	if o.gracefulTimeout != nil {
		c.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		c.Logger = o.logger
	} else {
		logger.Init(settings.Logging)
		c.Logger = logger.GetGlobalLogger()
	}
	c.Components.SetLogger(c.Logger.WithComponent("component"))

	transportOpts := append([]httpclient.Option{
		httpclient.WithLogger(c.Logger.WithComponent("httpclient")),
	}, o.transportOptions...)

	c.telemetry = observability.NewTelemetry(settings.Telemetry)
	c.transport = httpclient.NewComponent(settings.Transport, transportOpts...)

	for _, comp := range append([]component.Component{c.telemetry, c.transport}, o.components...) {
		if err := c.Components.Register(comp); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Transport returns the running transport, or nil before Start.
func (c *Client) Transport() *httpclient.Transport {
	return c.transport.Transport()
}

// NewBuilder returns a request builder on the running transport.
func (c *Client) NewBuilder() *httpclient.Builder {
	return c.transport.NewBuilder()
}

// ReadyCheck verifies that all registered components are healthy.
func (c *Client) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range c.Components.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			detail := h.Name + "=" + string(h.Status)
			if h.Message != "" {
				detail += "(" + h.Message + ")"
			}
			unhealthy = append(unhealthy, detail)
		}
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// Start starts all components, runs the OnStart hooks and records the
// startup summary.
func (c *Client) Start(ctx context.Context) error {
	start := time.Now()

	c.Logger.Info("Starting client", logger.Fields(
		"name", c.Name,
		"version", version.GetShortVersion(),
	))

	if err := c.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start components: %w", err)
	}
	if err := runHooks(ctx, c.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := c.ReadyCheck(ctx); err != nil {
		c.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}

	c.Summary.SetStartupDuration(time.Since(start))
	if c.summaryOut != nil {
		c.Summary.Write(ctx, c.summaryOut, c.Components)
	}
	return nil
}

// RunTask starts the client, runs task and shuts down. SIGINT and SIGTERM
// cancel the task's context. A task error takes precedence over a
// shutdown error.
func (c *Client) RunTask(ctx context.Context, task func(ctx context.Context, c *Client) error) error {
	if err := c.Start(ctx); err != nil {
		_ = c.Shutdown(ctx)
		return err
	}

	taskCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskErr := task(taskCtx, c)
	if stopErr := c.Shutdown(ctx); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// Shutdown runs the OnStop hooks and stops all components in reverse
// order within the graceful timeout.
func (c *Client) Shutdown(ctx context.Context) error {
	c.Logger.Debug("Shutting down client", logger.Fields("timeout", c.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.gracefulTimeout)
	defer cancel()

	var shutdownErr error
	if err := runHooks(ctx, c.onStop); err != nil {
		c.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		shutdownErr = err
	}
	if err := c.Components.StopAll(ctx); err != nil {
		c.Logger.Error("Shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		shutdownErr = err
	}
	return shutdownErr
}
