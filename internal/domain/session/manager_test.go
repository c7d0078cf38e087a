package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

// memStore is an in-process repository.SessionStore used only for tests.
type memStore struct {
	sessions map[string]*entity.Session
	entries  map[string]map[string]*entity.Entry // sessionID -> entryID -> entry
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*entity.Session),
		entries:  make(map[string]map[string]*entity.Entry),
	}
}

func (s *memStore) SaveSession(_ context.Context, session *entity.Session) error {
	s.sessions[session.ID()] = session
	return nil
}

func (s *memStore) FindSession(_ context.Context, id string) (*entity.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return sess, nil
}

func (s *memStore) ListSessions(_ context.Context, limit, offset int) ([]*entity.Session, error) {
	out := make([]*entity.Session, 0, len(s.sessions))
	for _, v := range s.sessions {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) AppendEntry(_ context.Context, sessionID string, entry *entity.Entry) error {
	if s.entries[sessionID] == nil {
		s.entries[sessionID] = make(map[string]*entity.Entry)
	}
	s.entries[sessionID][entry.ID()] = entry
	return nil
}

func (s *memStore) FindEntry(_ context.Context, sessionID, entryID string) (*entity.Entry, error) {
	m, ok := s.entries[sessionID]
	if !ok {
		return nil, entity.ErrInvalidEntryID
	}
	e, ok := m[entryID]
	if !ok {
		return nil, entity.ErrInvalidEntryID
	}
	return e, nil
}

func (s *memStore) ReadAllEntries(_ context.Context, sessionID string) ([]*entity.Entry, bool, error) {
	out := make([]*entity.Entry, 0, len(s.entries[sessionID]))
	for _, e := range s.entries[sessionID] {
		out = append(out, e)
	}
	return out, false, nil
}

func TestManager_AppendEntryAdvancesLeaf(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test")
	require.NoError(t, err)
	require.Empty(t, sess.LeafID())

	content := valueobject.NewMessageContent("hello", valueobject.ContentTypeText)
	entry, err := mgr.AppendEntry(ctx, sess, "", entity.RoleUser, content)
	require.NoError(t, err)
	require.Equal(t, entry.ID(), sess.LeafID())

	reply, err := mgr.AppendEntry(ctx, sess, entry.ID(), entity.RoleAssistant, content)
	require.NoError(t, err)
	require.Equal(t, reply.ID(), sess.LeafID())
}

func TestManager_GetBranchWalksToRoot(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test")
	require.NoError(t, err)
	content := valueobject.NewMessageContent("x", valueobject.ContentTypeText)

	root, err := mgr.AppendEntry(ctx, sess, "", entity.RoleUser, content)
	require.NoError(t, err)
	mid, err := mgr.AppendEntry(ctx, sess, root.ID(), entity.RoleAssistant, content)
	require.NoError(t, err)
	leaf, err := mgr.AppendEntry(ctx, sess, mid.ID(), entity.RoleUser, content)
	require.NoError(t, err)

	branch, err := mgr.GetBranch(ctx, sess, leaf.ID())
	require.NoError(t, err)
	require.Len(t, branch, 3)
	require.Equal(t, root.ID(), branch[0].ID())
	require.Equal(t, mid.ID(), branch[1].ID())
	require.Equal(t, leaf.ID(), branch[2].ID())
}

func TestManager_ForkWalksIntoAncestorBranch(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	source, err := mgr.CreateSession(ctx, "source")
	require.NoError(t, err)
	content := valueobject.NewMessageContent("x", valueobject.ContentTypeText)

	root, err := mgr.AppendEntry(ctx, source, "", entity.RoleUser, content)
	require.NoError(t, err)
	branchPoint, err := mgr.AppendEntry(ctx, source, root.ID(), entity.RoleAssistant, content)
	require.NoError(t, err)

	fork, err := mgr.Fork(ctx, source, branchPoint.ID(), "forked")
	require.NoError(t, err)
	require.True(t, fork.IsFork())

	forkEntry, err := mgr.AppendEntry(ctx, fork, branchPoint.ID(), entity.RoleUser, content)
	require.NoError(t, err)

	branch, err := mgr.GetBranch(ctx, fork, forkEntry.ID())
	require.NoError(t, err)
	require.Len(t, branch, 3)
	require.Equal(t, root.ID(), branch[0].ID())
	require.Equal(t, branchPoint.ID(), branch[1].ID())
	require.Equal(t, forkEntry.ID(), branch[2].ID())
}

func TestManager_AppendToolResultRejectsDanglingCall(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test")
	require.NoError(t, err)
	content := valueobject.NewMessageContent("x", valueobject.ContentTypeText)
	root, err := mgr.AppendEntry(ctx, sess, "", entity.RoleUser, content)
	require.NoError(t, err)

	_, err = mgr.AppendToolResult(ctx, sess, root.ID(), entity.ToolResultRef{ToolCallID: "nonexistent", Output: "x", Success: true})
	require.ErrorIs(t, err, entity.ErrDanglingToolCall)
}

func TestManager_AppendToolResultAcceptsKnownCall(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test")
	require.NoError(t, err)
	content := valueobject.NewMessageContent("x", valueobject.ContentTypeText)
	root, err := mgr.AppendEntry(ctx, sess, "", entity.RoleUser, content)
	require.NoError(t, err)

	call := entity.ToolCallRef{ID: "call-1", Name: "fs.read_text", Arguments: map[string]any{"path": "a.txt"}}
	callEntry, err := mgr.AppendToolCall(ctx, sess, root.ID(), content, call)
	require.NoError(t, err)

	result, err := mgr.AppendToolResult(ctx, sess, callEntry.ID(), entity.ToolResultRef{ToolCallID: "call-1", Output: "ok", Success: true})
	require.NoError(t, err)
	require.True(t, result.IsToolResult())
}

func TestManager_GetBranchDetectsCycle(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, zap.NewNop())
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test")
	require.NoError(t, err)
	content := valueobject.NewMessageContent("x", valueobject.ContentTypeText)

	a := entity.ReconstructEntry("a", "b", entity.RoleUser, content, nil, nil, time.Now())
	b := entity.ReconstructEntry("b", "a", entity.RoleUser, content, nil, nil, time.Now())
	store.entries[sess.ID()] = map[string]*entity.Entry{"a": a, "b": b}

	_, err = mgr.GetBranch(ctx, sess, "a")
	require.ErrorIs(t, err, entity.ErrBranchCycle)
}
