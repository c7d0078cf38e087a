package llm

import (
	"time"

	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

// Role names the four resolver roles spec.md §4.4 defines.
type Role string

const (
	RoleDefault Role = "default"
	RolePlanner Role = "planner"
	RoleWorker  Role = "worker"
	RoleReviewer Role = "reviewer"
)

// Profile binds a role to a concrete provider/model plus its retry and
// escalation behavior. Sampling carries the request-shaping knobs
// (temperature, top_p, max_tokens, stream) a request sent under this
// profile is completed with; Provider/Model here are the resolver's
// routing choice: Runner sends Model as the request's model and takes
// only the sampling knobs from Sampling, never reading
// Sampling.Provider()/Model() (see completeWithRetry).
type Profile struct {
	Provider       string
	Model          string
	Timeout        time.Duration
	RetryCap       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	EscalateTo     Role // upgrade-only target; "" disables escalation
	Sampling       valueobject.ModelConfig
}

// ProfileResolver maps a role to its configured profile.
type ProfileResolver struct {
	profiles map[Role]Profile
}

// NewProfileResolver creates a resolver from a role->profile map.
func NewProfileResolver(profiles map[Role]Profile) *ProfileResolver {
	return &ProfileResolver{profiles: profiles}
}

// Resolve returns the profile for role, falling back to RoleDefault if
// role has no explicit entry.
func (p *ProfileResolver) Resolve(role Role) (Profile, bool) {
	if prof, ok := p.profiles[role]; ok {
		return prof, true
	}
	prof, ok := p.profiles[RoleDefault]
	return prof, ok
}

// Escalation returns the profile to retry against after role's retry
// budget is exhausted, per its EscalateTo target. Escalation is
// upgrade-only: it never points back at a role already tried in this
// chain (callers pass `tried` to enforce that).
func (p *ProfileResolver) Escalation(role Role, tried map[Role]bool) (Role, Profile, bool) {
	prof, ok := p.profiles[role]
	if !ok || prof.EscalateTo == "" || tried[prof.EscalateTo] {
		return "", Profile{}, false
	}
	next, ok := p.profiles[prof.EscalateTo]
	if !ok {
		return "", Profile{}, false
	}
	return prof.EscalateTo, next, true
}
