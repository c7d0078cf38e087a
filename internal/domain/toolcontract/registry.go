// Package toolcontract implements the Tool Contract Registry (spec.md
// §4.5): the canonical, LLM-facing tool catalog with alias resolution.
//
// Grounded on the teacher's internal/domain/tool.Registry
// (InMemoryRegistry over a name->Tool map with a kind-based policy
// layer), split here into a pure contract catalog — the provider
// routing and capability policy enforcement the teacher bundles into
// one Tool/Registry pair is factored out into toolprovider, matching
// spec.md's explicit split between C5 (contract) and C6 (provider).
package toolcontract

import (
	"sync"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
)

// Registry holds the canonical tool contracts the LLM is offered and
// resolves aliases to canonical names.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*entity.ToolContract // canonical name -> contract
	aliasOf   map[string]string               // alias -> canonical name
}

// NewRegistry creates an empty tool contract registry.
func NewRegistry() *Registry {
	return &Registry{
		contracts: make(map[string]*entity.ToolContract),
		aliasOf:   make(map[string]string),
	}
}

// Register adds a new tool contract, or overrides an existing one with
// the same canonical name.
func (r *Registry) Register(tc *entity.ToolContract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[tc.CanonicalName()]; !exists {
		if _, aliasTaken := r.aliasOf[tc.CanonicalName()]; aliasTaken {
			return entity.ErrAliasCollision
		}
	}
	for _, alias := range tc.Aliases() {
		if owner, ok := r.aliasOf[alias]; ok && owner != tc.CanonicalName() {
			return entity.ErrAliasCollision
		}
		if _, isCanonical := r.contracts[alias]; isCanonical && alias != tc.CanonicalName() {
			return entity.ErrAliasCollision
		}
	}

	r.contracts[tc.CanonicalName()] = tc
	for _, alias := range tc.Aliases() {
		r.aliasOf[alias] = tc.CanonicalName()
	}
	return nil
}

// AddAlias registers a new alias for an already-registered canonical
// tool, refusing collisions with any other contract's name or alias.
func (r *Registry) AddAlias(canonicalName, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tc, ok := r.contracts[canonicalName]
	if !ok {
		return entity.ErrInvalidToolName
	}
	if owner, exists := r.aliasOf[alias]; exists && owner != canonicalName {
		return entity.ErrAliasCollision
	}
	if _, isCanonical := r.contracts[alias]; isCanonical && alias != canonicalName {
		return entity.ErrAliasCollision
	}
	tc.AddAlias(alias)
	r.aliasOf[alias] = canonicalName
	return nil
}

// Unregister removes a tool contract and its aliases entirely.
func (r *Registry) Unregister(canonicalName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.contracts[canonicalName]
	if !ok {
		return
	}
	for _, alias := range tc.Aliases() {
		delete(r.aliasOf, alias)
	}
	delete(r.contracts, canonicalName)
}

// Resolve maps a requested name (canonical or alias) to its canonical
// tool contract.
func (r *Registry) Resolve(name string) (*entity.ToolContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tc, ok := r.contracts[name]; ok {
		return tc, nil
	}
	if canonical, ok := r.aliasOf[name]; ok {
		return r.contracts[canonical], nil
	}
	return nil, entity.ErrInvalidToolName
}

// ListForLLM returns every registered contract, in registration-stable
// order is not guaranteed (map iteration) — callers that need a stable
// order for prompt rendering should sort by CanonicalName.
func (r *Registry) ListForLLM() []*entity.ToolContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ToolContract, 0, len(r.contracts))
	for _, tc := range r.contracts {
		out = append(out, tc)
	}
	return out
}
