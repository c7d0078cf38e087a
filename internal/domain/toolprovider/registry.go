// Package toolprovider implements the Tool Provider Registry & Capability
// Policy (spec.md §4.6): binds concrete provider implementations to the
// capabilities a ToolContract declares, and records the CapabilityPolicy
// for each capability, refusing providers for a capability that has
// none. The registry does not itself check the lease requirement,
// verification policy or retry cap; Policy hands the record to callers.
//
// Grounded on the teacher's internal/infrastructure/llm.Router: "iterate
// candidates in priority order, skip ones that can't handle this request,
// take the first viable" is exactly spec.md §4.6's routing rule, just
// applied to tool capability providers instead of LLM providers.
package toolprovider

import (
	"context"
	"sort"
	"sync"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Invoke is a provider's execution function for one capability.
type Invoke func(ctx context.Context, target string, args map[string]any) (map[string]any, error)

type binding struct {
	reg    *entity.ToolProviderRegistration
	invoke Invoke
}

// Registry routes capability invocations to the highest-priority provider
// whose predicate accepts the target, and enforces that every capability
// carries an explicit CapabilityPolicy before any provider may register
// against it (SPEC_FULL.md Open Question (a) decision).
type Registry struct {
	mu         sync.RWMutex
	seq        int
	policies   map[string]entity.CapabilityPolicy        // capability -> policy
	providers  map[string][]binding                       // capability -> candidate providers
}

// NewRegistry creates an empty tool provider registry.
func NewRegistry() *Registry {
	return &Registry{
		policies:  make(map[string]entity.CapabilityPolicy),
		providers: make(map[string][]binding),
	}
}

// RegisterCapability declares the policy for a capability. Must be
// called before any provider registers against that capability.
func (r *Registry) RegisterCapability(capability string, policy entity.CapabilityPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[capability] = policy
}

// Policy returns the capability policy, or ErrCapabilityUnbound if none
// was registered.
func (r *Registry) Policy(capability string) (entity.CapabilityPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[capability]
	if !ok {
		return entity.CapabilityPolicy{}, entity.ErrCapabilityUnbound
	}
	return p, nil
}

// RegisterProvider binds invoke to capability via the given priority and
// predicate. Refuses registration if the capability has no
// CapabilityPolicy yet — every capability must be explicitly governed
// before it can be served.
func (r *Registry) RegisterProvider(providerID, capability string, priority int, canHandle func(string) bool, invoke Invoke) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[capability]; !ok {
		return entity.ErrCapabilityUnbound
	}

	r.seq++
	reg := entity.NewToolProviderRegistration(providerID, capability, priority, canHandle, r.seq)
	r.providers[capability] = append(r.providers[capability], binding{reg: reg, invoke: invoke})
	sort.SliceStable(r.providers[capability], func(i, j int) bool {
		return r.providers[capability][i].reg.Less(r.providers[capability][j].reg)
	})
	return nil
}

// Route selects the highest-priority provider (registration-order
// tie-break) whose CanHandle(target) accepts, and invokes it. Returns
// E_NO_PROVIDER if no registered provider accepts the target.
func (r *Registry) Route(ctx context.Context, capability, target string, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	candidates := make([]binding, len(r.providers[capability]))
	copy(candidates, r.providers[capability])
	r.mu.RUnlock()

	for _, c := range candidates {
		if c.reg.CanHandle(target) {
			return c.invoke(ctx, target, args)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNoProvider, "no provider accepts target for capability "+capability)
}

// Providers returns the registered providers for a capability, in
// routing order, for introspection/testing.
func (r *Registry) Providers(capability string) []*entity.ToolProviderRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ToolProviderRegistration, 0, len(r.providers[capability]))
	for _, b := range r.providers[capability] {
		out = append(out, b.reg)
	}
	return out
}
