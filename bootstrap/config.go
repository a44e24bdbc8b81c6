package bootstrap

import (
	"fmt"

	"github.com/kbukum/httpreq/config"
	"github.com/kbukum/httpreq/httpclient"
	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/observability"
	"github.com/kbukum/httpreq/version"
)

// Settings is the complete client configuration.
//
//	name: threatconnect
//	logging:
//	  level: debug
//	telemetry:
//	  tracing: true
//	transport:
//	  max_retries: 5
type Settings struct {
	Name      string                        `yaml:"name" mapstructure:"name"`
	Logging   logger.Config                 `yaml:"logging" mapstructure:"logging"`
	Telemetry observability.TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Transport httpclient.Config             `yaml:"transport" mapstructure:"transport"`
}

// DefaultSettings returns the default transport with telemetry switched off.
func DefaultSettings() Settings {
	s := Settings{
		Name:      version.Product,
		Telemetry: observability.DefaultTelemetryConfig(version.Product),
		Transport: httpclient.DefaultConfig(),
	}
	s.Telemetry.Tracing = false
	s.Telemetry.Metrics = false
	s.Logging.ApplyDefaults()
	return s
}

// ApplyDefaults fills in zero values in every section.
func (s *Settings) ApplyDefaults() {
	if s.Name == "" {
		s.Name = version.Product
	}
	s.Logging.ApplyDefaults()
	s.Transport.ApplyDefaults()
	if s.Telemetry.Tracer.ServiceName == "" {
		s.Telemetry.Tracer.ServiceName = s.Name
	}
	if s.Telemetry.Meter.ServiceName == "" {
		s.Telemetry.Meter.ServiceName = s.Name
	}
}

// Validate checks every section.
func (s *Settings) Validate() error {
	if err := s.Logging.Validate(); err != nil {
		return err
	}
	if err := s.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

// LoadSettings reads Settings from the config file and environment
// (HTTPREQ_LOGGING_LEVEL, HTTPREQ_TRANSPORT_MAX_RETRIES and so on) over
// DefaultSettings.
func LoadSettings(opts ...config.LoaderOption) (Settings, error) {
	s := DefaultSettings()
	// A configured list replaces the default instead of being decoded over it.
	s.Transport.RetryStatusCodes = nil
	s.Transport.RetryMethods = nil
	if err := config.Load(&s, opts...); err != nil {
		return Settings{}, err
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
