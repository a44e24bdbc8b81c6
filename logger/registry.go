package logger

import (
	"sync"
)

// Component loggers are derived from the global logger on first use and
// cached by name. Replacing the global logger drops every derived entry so
// later lookups follow the new output; explicitly registered loggers stay.
var components = struct {
	mu      sync.RWMutex
	pinned  map[string]*Logger
	derived map[string]*Logger
}{
	pinned:  make(map[string]*Logger),
	derived: make(map[string]*Logger),
}

// Register pins a logger under a component name. Pinned loggers survive
// SetGlobalLogger and Init.
func Register(name string, l *Logger) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.pinned[name] = l
	delete(components.derived, name)
}

// Get returns the logger for a component, tagging the global logger with the
// component name when none was registered.
func Get(name string) *Logger {
	components.mu.RLock()
	l, ok := components.pinned[name]
	if !ok {
		l, ok = components.derived[name]
	}
	components.mu.RUnlock()
	if ok {
		return l
	}

	components.mu.Lock()
	defer components.mu.Unlock()
	if l, ok := components.pinned[name]; ok {
		return l
	}
	if l, ok := components.derived[name]; ok {
		return l
	}
	l = GetGlobalLogger().WithComponent(name)
	components.derived[name] = l
	return l
}

func resetDerived() {
	components.mu.Lock()
	components.derived = make(map[string]*Logger)
	components.mu.Unlock()
}
