// Package session implements the Session Manager (spec.md §4.2): entry
// append, fork, branch walk, and context assembly over the Session Store
// port. It owns branching semantics; persistence mechanics live in
// internal/infrastructure/store.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

// maxBranchLength bounds defensive cycle detection during branch walks —
// a legitimate branch this long would already have been compacted.
const maxBranchLength = 100_000

// Manager implements spec.md §4.2's Session Manager operations.
type Manager struct {
	store  repository.SessionStore
	logger *zap.Logger
}

// NewManager creates a session manager over the given store.
func NewManager(store repository.SessionStore, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// CreateSession creates and persists a new root session.
func (m *Manager) CreateSession(ctx context.Context, title string) (*entity.Session, error) {
	s, err := entity.NewSession(uuid.NewString(), title)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// AppendEntry allocates a fresh entry identifier, persists it as a child
// of parentEntryID, and advances the session's leaf pointer if
// parentEntryID was the current leaf (spec.md §4.2).
func (m *Manager) AppendEntry(ctx context.Context, session *entity.Session, parentEntryID string, role entity.EntryRole, content valueobject.MessageContent) (*entity.Entry, error) {
	entryID := uuid.NewString()
	entry, err := entity.NewEntry(entryID, parentEntryID, role, content)
	if err != nil {
		return nil, err
	}
	if err := m.store.AppendEntry(ctx, session.ID(), entry); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}
	if parentEntryID == session.LeafID() || session.LeafID() == "" {
		session.MoveLeaf(entryID)
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("advance leaf: %w", err)
		}
	}
	return entry, nil
}

// AppendToolCall appends an assistant entry declaring a tool invocation.
func (m *Manager) AppendToolCall(ctx context.Context, session *entity.Session, parentEntryID string, content valueobject.MessageContent, call entity.ToolCallRef) (*entity.Entry, error) {
	entryID := uuid.NewString()
	entry, err := entity.NewToolCallEntry(entryID, parentEntryID, content, call)
	if err != nil {
		return nil, err
	}
	if err := m.store.AppendEntry(ctx, session.ID(), entry); err != nil {
		return nil, fmt.Errorf("append tool call entry: %w", err)
	}
	if parentEntryID == session.LeafID() || session.LeafID() == "" {
		session.MoveLeaf(entryID)
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("advance leaf: %w", err)
		}
	}
	return entry, nil
}

// AppendToolResult appends a tool-role entry carrying a result, verifying
// the referenced tool_call id exists somewhere on this branch before
// allowing the append (spec.md §3 invariant ii).
func (m *Manager) AppendToolResult(ctx context.Context, session *entity.Session, parentEntryID string, result entity.ToolResultRef) (*entity.Entry, error) {
	branch, err := m.GetBranch(ctx, session, parentEntryID)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, e := range branch {
		if c := e.ToolCall(); c != nil && c.ID == result.ToolCallID {
			exists = true
			break
		}
	}
	entryID := uuid.NewString()
	entry, err := entity.NewToolResultEntry(entryID, parentEntryID, result, exists)
	if err != nil {
		return nil, err
	}
	if err := m.store.AppendEntry(ctx, session.ID(), entry); err != nil {
		return nil, fmt.Errorf("append tool result entry: %w", err)
	}
	if parentEntryID == session.LeafID() || session.LeafID() == "" {
		session.MoveLeaf(entryID)
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("advance leaf: %w", err)
		}
	}
	return entry, nil
}

// Fork creates a new session whose metadata records the parent session
// and fork entry. No entries are copied — GetBranch lazily walks the
// ancestor branch on context assembly (spec.md §4.2).
func (m *Manager) Fork(ctx context.Context, source *entity.Session, forkFromEntryID, title string) (*entity.Session, error) {
	fork, err := entity.NewForkedSession(uuid.NewString(), title, source.ID(), forkFromEntryID)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, fork); err != nil {
		return nil, fmt.Errorf("save forked session: %w", err)
	}
	return fork, nil
}

// GetBranch walks from leaf upward to the root, continuing into the
// source session's branch at a fork boundary. Detects cycles and aborts
// with ErrBranchCycle; a walk exceeding maxBranchLength aborts with
// ErrBranchTooLong rather than looping forever on corrupt data.
func (m *Manager) GetBranch(ctx context.Context, session *entity.Session, leafID string) ([]*entity.Entry, error) {
	if leafID == "" {
		return nil, nil
	}
	var reversed []*entity.Entry
	seen := make(map[string]bool)
	sessionID := session.ID()
	currentLeaf := leafID
	fork := session.Fork()

	for {
		if currentLeaf == "" {
			break
		}
		if seen[currentLeaf] {
			return nil, entity.ErrBranchCycle
		}
		seen[currentLeaf] = true
		if len(reversed) >= maxBranchLength {
			return nil, entity.ErrBranchTooLong
		}

		entry, err := m.store.FindEntry(ctx, sessionID, currentLeaf)
		if err != nil {
			if fork != nil && sessionID != fork.ParentSessionID {
				// Crossed the fork boundary: continue walking in the
				// ancestor session starting at its recorded leaf.
				sessionID = fork.ParentSessionID
				currentLeaf = fork.ParentLeafID
				fork = nil
				continue
			}
			return nil, fmt.Errorf("find entry %s in session %s: %w", currentLeaf, sessionID, err)
		}

		reversed = append(reversed, entry)
		if entry.IsRoot() {
			if fork != nil && sessionID != fork.ParentSessionID {
				sessionID = fork.ParentSessionID
				currentLeaf = fork.ParentLeafID
				fork = nil
				continue
			}
			break
		}
		currentLeaf = entry.ParentID()
	}

	branch := make([]*entity.Entry, len(reversed))
	for i, e := range reversed {
		branch[len(reversed)-1-i] = e
	}
	return branch, nil
}

// ContextOptions controls build_session_context's compaction-summary
// prefixing behavior.
type ContextOptions struct {
	// PrependSummary, when set, is rendered as a leading system_summary
	// entry ahead of the walked branch.
	PrependSummary *entity.Entry
}

// BuildSessionContext returns the ordered branch entries for leafID,
// optionally prepended with the latest compaction summary marked as a
// system-summary entry (spec.md §4.2).
func (m *Manager) BuildSessionContext(ctx context.Context, session *entity.Session, leafID string, opts ContextOptions) ([]*entity.Entry, error) {
	branch, err := m.GetBranch(ctx, session, leafID)
	if err != nil {
		return nil, err
	}
	if opts.PrependSummary == nil {
		return branch, nil
	}
	out := make([]*entity.Entry, 0, len(branch)+1)
	out = append(out, opts.PrependSummary)
	out = append(out, branch...)
	return out, nil
}
