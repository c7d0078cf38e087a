package entity

// VerificationPolicy controls whether a capability's effect must be
// verified (via the Execution Engine's verify step) before a tool call
// is considered complete.
type VerificationPolicy string

const (
	VerifyNever     VerificationPolicy = "never"
	VerifyOnCritical VerificationPolicy = "on_critical"
	VerifyAlways    VerificationPolicy = "always"
)

// CapabilityPolicy governs how a capability is executed and retried.
// Every capability registered with the Tool Provider Registry MUST carry
// one of these — registration without it is refused (see DESIGN.md,
// Open Question a).
type CapabilityPolicy struct {
	RequiresLease          bool
	Verification           VerificationPolicy
	Mutating               bool
	MaxRetries             int
	NoProgressSignatureClass string
}

// ToolProviderRegistration binds a provider implementation to the
// capabilities it can serve, along with a routing predicate and priority.
type ToolProviderRegistration struct {
	providerID    string
	capability    string
	priority      int
	canHandle     func(target string) bool
	registeredSeq int // tie-break: earlier registration wins at equal priority
}

// NewToolProviderRegistration creates a provider registration. seq is the
// registry's monotonically increasing registration counter, used to
// break priority ties deterministically.
func NewToolProviderRegistration(providerID, capability string, priority int, canHandle func(string) bool, seq int) *ToolProviderRegistration {
	if canHandle == nil {
		canHandle = func(string) bool { return true }
	}
	return &ToolProviderRegistration{
		providerID:    providerID,
		capability:    capability,
		priority:      priority,
		canHandle:     canHandle,
		registeredSeq: seq,
	}
}

func (r *ToolProviderRegistration) ProviderID() string { return r.providerID }
func (r *ToolProviderRegistration) Capability() string  { return r.capability }
func (r *ToolProviderRegistration) Priority() int       { return r.priority }
func (r *ToolProviderRegistration) Seq() int            { return r.registeredSeq }

// CanHandle reports whether this provider accepts the given invocation
// target (e.g. a URL pattern, a tab scope, a file path prefix).
func (r *ToolProviderRegistration) CanHandle(target string) bool { return r.canHandle(target) }

// Less orders registrations for routing: higher priority first, then
// earlier registration first.
func (r *ToolProviderRegistration) Less(other *ToolProviderRegistration) bool {
	if r.priority != other.priority {
		return r.priority > other.priority
	}
	return r.registeredSeq < other.registeredSeq
}
