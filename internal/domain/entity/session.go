package entity

import "time"

// Session is the aggregate root for a branching conversation. It owns a
// DAG of entries reachable from root and tracks the current leaf — the
// entry new turns are appended under.
type Session struct {
	id        string
	title     string
	leafID    string
	status    SessionStatus
	routePref string // preferred LLM route/profile for this session
	fork      *ForkRef
	createdAt time.Time
	updatedAt time.Time
}

// SessionStatus is the coarse lifecycle status persisted alongside a
// session's metadata. It is independent from the orchestrator's in-memory
// RunState — a session can be "running" across process restarts.
type SessionStatus string

const (
	SessionIdle          SessionStatus = "idle"
	SessionRunning       SessionStatus = "running"
	SessionPaused        SessionStatus = "paused"
	SessionFailedExecute SessionStatus = "failed_execute"
	SessionDone          SessionStatus = "done"
)

// ForkRef records the ancestor a forked session diverged from. A fork
// copies no entries — context assembly walks the ancestor branch by
// reference up to ParentLeafID, then continues in the fork's own entries.
type ForkRef struct {
	ParentSessionID string
	ParentLeafID    string
}

// NewSession creates a fresh root session (not a fork).
func NewSession(id, title string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	now := time.Now()
	return &Session{
		id:        id,
		title:     title,
		status:    SessionIdle,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// NewForkedSession creates a session pinned to an ancestor entry of
// another session.
func NewForkedSession(id, title, parentSessionID, parentLeafID string) (*Session, error) {
	s, err := NewSession(id, title)
	if err != nil {
		return nil, err
	}
	s.fork = &ForkRef{ParentSessionID: parentSessionID, ParentLeafID: parentLeafID}
	s.leafID = parentLeafID
	return s, nil
}

// ReconstructSession rebuilds a session from persisted state.
func ReconstructSession(id, title, leafID string, status SessionStatus, routePref string, fork *ForkRef, createdAt, updatedAt time.Time) *Session {
	return &Session{
		id:        id,
		title:     title,
		leafID:    leafID,
		status:    status,
		routePref: routePref,
		fork:      fork,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Title() string           { return s.title }
func (s *Session) LeafID() string          { return s.leafID }
func (s *Session) Status() SessionStatus   { return s.status }
func (s *Session) RoutePreference() string { return s.routePref }
func (s *Session) CreatedAt() time.Time    { return s.createdAt }
func (s *Session) UpdatedAt() time.Time    { return s.updatedAt }

// Fork returns the fork ancestry, or nil if this is a root session.
func (s *Session) Fork() *ForkRef { return s.fork }

// IsFork reports whether this session was created via fork.
func (s *Session) IsFork() bool { return s.fork != nil }

// MoveLeaf advances the leaf pointer. It does not look at or change the
// lifecycle status; the failed_execute -> running rule is enforced by
// TransitionTo.
func (s *Session) MoveLeaf(entryID string) {
	s.leafID = entryID
	s.updatedAt = time.Now()
}

// SetTitle updates the session title (e.g. from a title-refresh operation).
func (s *Session) SetTitle(title string) {
	s.title = title
	s.updatedAt = time.Now()
}

// SetRoutePreference pins this session to a specific LLM route/profile.
func (s *Session) SetRoutePreference(route string) {
	s.routePref = route
	s.updatedAt = time.Now()
}

// TransitionTo moves the session to a new lifecycle status. Resuming a
// failed_execute session back to running requires explicit regenerate —
// callers enforce that at the orchestrator layer; this method only
// disallows the specific silent transition the invariant forbids.
func (s *Session) TransitionTo(status SessionStatus, explicitRegenerate bool) error {
	if s.status == SessionFailedExecute && status == SessionRunning && !explicitRegenerate {
		return ErrInvalidTransition
	}
	s.status = status
	s.updatedAt = time.Now()
	return nil
}
