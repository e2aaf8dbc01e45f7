package publisher

import (
	"fmt"
	"strings"
	"sync"
)

type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

func (r *Registry) Register(p Publisher) {
	name := strings.ToLower(strings.TrimSpace(p.Platform()))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[name] = p
}

func (r *Registry) Get(name string) (Publisher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	p, ok := r.publishers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", name)
	}
	return p, nil
}

// Platforms lists the registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	return out
}
