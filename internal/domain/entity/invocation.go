package entity

// InvocationEnvelope is the unit of work carried across the bridge's
// /ws duplex channel to the out-of-process local executor, and is also
// used internally for browser tool dispatch. Fingerprint is a hash of
// (canonicalToolName, arguments) used by the bridge's dedup cache to
// detect a retried request and reject a mismatched replay with E_ARGS.
type InvocationEnvelope struct {
	InvocationID      string
	SessionID         string
	ParentSessionID   string // set when SessionID belongs to a fork
	AgentID           string
	RequestedToolName string
	CanonicalToolName string
	Arguments         map[string]any
	Fingerprint       string
}

// NewInvocationEnvelope creates an invocation envelope. fingerprint is
// computed by the caller (the bridge) over the canonical name and
// arguments so it stays stable across requested-name aliasing.
func NewInvocationEnvelope(invocationID, sessionID, agentID, requestedName, canonicalName string, args map[string]any, fingerprint string) *InvocationEnvelope {
	return &InvocationEnvelope{
		InvocationID:      invocationID,
		SessionID:         sessionID,
		AgentID:           agentID,
		RequestedToolName: requestedName,
		CanonicalToolName: canonicalName,
		Arguments:         args,
		Fingerprint:        fingerprint,
	}
}

// WithParentSession marks this envelope as belonging to a forked session.
func (e *InvocationEnvelope) WithParentSession(parentSessionID string) *InvocationEnvelope {
	e.ParentSessionID = parentSessionID
	return e
}

// MatchesFingerprint reports whether a replayed request's fingerprint
// matches the one recorded for this invocation — a mismatch means the
// dedup cache saw the same invocation ID reused with different
// arguments, which must fail with E_ARGS rather than return the stale
// cached result.
func (e *InvocationEnvelope) MatchesFingerprint(fp string) bool { return e.Fingerprint == fp }
