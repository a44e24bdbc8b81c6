package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/httpreq/component"
	"github.com/kbukum/httpreq/httpclient"
	"github.com/kbukum/httpreq/logger"
)

// Option configures the Client during creation.
type Option func(*clientOptions)

type clientOptions struct {
	logger           *logger.Logger
	gracefulTimeout  *time.Duration
	transportOptions []httpclient.Option
	components       []component.Component
	summary          io.Writer
}

func resolveOptions(opts []Option) *clientOptions {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger.
// If not set, the logger is initialized from Settings.Logging.
func WithLogger(l *logger.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout bounds the time Shutdown waits for components to stop.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.gracefulTimeout = &d
	}
}

// WithTransportOptions passes options through to httpclient.NewTransport.
func WithTransportOptions(opts ...httpclient.Option) Option {
	return func(o *clientOptions) {
		o.transportOptions = append(o.transportOptions, opts...)
	}
}

// WithComponent registers an additional component. Additional components
// start after telemetry and the transport, and stop before them.
func WithComponent(c component.Component) Option {
	return func(o *clientOptions) {
		o.components = append(o.components, c)
	}
}

// WithSummary writes the startup summary to w.
func WithSummary(w io.Writer) Option {
	return func(o *clientOptions) {
		o.summary = w
	}
}
