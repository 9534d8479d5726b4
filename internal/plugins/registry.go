// Package plugins builds the configurable middleware chain placed in front
// of the public routes.
package plugins

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/0xReLogic/Furnace/internal/config"
)

// Middleware wraps a handler; it must call next to continue the chain.
type Middleware func(next http.Handler) http.Handler

// Factory builds a middleware from its configured settings.
type Factory func(settings map[string]interface{}) (Middleware, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a plugin available under name. Registering an existing
// name replaces it.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

func lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// BuildChain wraps base with the configured plugins. The first plugin listed
// is the outermost wrapper and so sees the request first.
func BuildChain(pc config.PluginsConfig, base http.Handler) (http.Handler, error) {
	if base == nil {
		return nil, errors.New("base handler is nil")
	}
	if !pc.Enabled {
		return base, nil
	}

	h := base
	for i := len(pc.Chain) - 1; i >= 0; i-- {
		p := pc.Chain[i]
		f, ok := lookup(p.Name)
		if !ok {
			return nil, fmt.Errorf("unknown plugin: %s", p.Name)
		}
		mw, err := f(p.Config)
		if err != nil {
			return nil, fmt.Errorf("plugin %s init failed: %w", p.Name, err)
		}
		h = mw(h)
	}
	return h, nil
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}
