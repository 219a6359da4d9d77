// Package plugin defines the lookup plugin interface for sgscope.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/sgscope/internal/finder"
)

// Plugin is the interface all cloud provider plugins must implement.
type Plugin interface {
	// Name returns the plugin identifier (e.g., "aws")
	Name() string

	// Region returns the region the plugin's clients are bound to.
	Region() string

	// Providers returns the plugin's lookups in scan order.
	// The order is fixed; new providers are appended.
	Providers() []finder.Provider
}

// Registry holds registered plugins.
var (
	registry = make(map[string]Plugin)
	mu       sync.RWMutex
)

// Register adds a plugin to the registry.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name()] = p
}

// Get returns a plugin by name.
func Get(name string) (Plugin, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// All returns all registered plugins, sorted by name.
func All() []Plugin {
	mu.RLock()
	defer mu.RUnlock()
	plugins := make([]Plugin, 0, len(registry))
	for _, p := range registry {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name() < plugins[j].Name() })
	return plugins
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFinder builds a finder over the named plugin's providers.
func NewFinder(name string, cfg finder.Config) (*finder.Finder, error) {
	p, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("plugin %q not registered", name)
	}
	cfg.Region = p.Region()
	return finder.New(cfg, p.Providers())
}

// Clear removes all plugins from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Plugin)
}
