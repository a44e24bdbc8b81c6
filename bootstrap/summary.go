package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/httpreq/component"
)

// Summary renders what a client started with.
type Summary struct {
	name            string
	version         string
	startupDuration time.Duration
}

// NewSummary creates a summary for the named client.
func NewSummary(name, version string) *Summary {
	return &Summary{name: name, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// StartupDuration returns the recorded startup time.
func (s *Summary) StartupDuration() time.Duration {
	return s.startupDuration
}

// Write renders the summary with live health and descriptions from
// registry.
func (s *Summary) Write(ctx context.Context, w io.Writer, registry *component.Registry) {
	fmt.Fprintf(w, "\n%s %s started in %.2fs\n", s.name, s.version, s.startupDuration.Seconds())

	if registry == nil {
		fmt.Fprintf(w, "   └── No components registered\n\n")
		return
	}
	results := registry.HealthAll(ctx)
	if len(results) == 0 {
		fmt.Fprintf(w, "   └── No components registered\n\n")
		return
	}

	fmt.Fprintf(w, "\nComponents\n")
	healthy := 0
	for i, h := range results {
		prefix := "├──"
		if i == len(results)-1 {
			prefix = "└──"
		}

		line := fmt.Sprintf("   %s %s %s: %s", prefix, healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)))
		if d, ok := registry.Get(h.Name).(component.Describable); ok {
			if desc := d.Describe(); desc.Details != "" {
				line += fmt.Sprintf(" [%s] %s", desc.Type, desc.Details)
			}
		}
		if h.Message != "" {
			line += " (" + h.Message + ")"
		}
		fmt.Fprintln(w, line)

		if h.Status == component.StatusHealthy {
			healthy++
		}
	}

	if healthy == len(results) {
		fmt.Fprintf(w, "\nAll components healthy (%d/%d)\n\n", healthy, len(results))
	} else {
		fmt.Fprintf(w, "\nSome components have issues (%d/%d healthy)\n\n", healthy, len(results))
	}
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "[ok]"
	case component.StatusDegraded:
		return "[!!]"
	case component.StatusUnhealthy:
		return "[xx]"
	default:
		return "[??]"
	}
}
