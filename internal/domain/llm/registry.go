package llm

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry holds named adapters and a circuit breaker per adapter,
// mirroring the teacher's Router's stats/breakers maps.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger.With(zap.String("component", "llm-registry")),
	}
}

// Add registers an adapter under its own Name().
func (r *Registry) Add(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.breakers[a.Name()] = NewCircuitBreaker(5, 30*time.Second)
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Breaker returns the circuit breaker tracking an adapter's health.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Names returns every registered adapter name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	return out
}
