package experiment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/san-kum/stochsim/internal/config"
)

// Registry holds named model files, starting with the built-in presets.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*config.Config
}

func NewRegistry() *Registry {
	r := &Registry{configs: make(map[string]*config.Config)}
	for _, name := range config.ListPresets() {
		r.configs[name] = config.GetPreset(name)
	}
	return r
}

// Register adds or replaces a named configuration.
func (r *Registry) Register(name string, cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg.Clone()
}

// Get returns a copy of the named configuration.
func (r *Registry) Get(name string) (*config.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return cfg.Clone(), nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
