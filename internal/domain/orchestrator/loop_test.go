package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/hook"
	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	"github.com/fenwicklabs/brainloop/internal/domain/session"
	"github.com/fenwicklabs/brainloop/internal/domain/toolcontract"
	"github.com/fenwicklabs/brainloop/internal/domain/toolprovider"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

// --- test fixtures shared with the session package's style ---

type memStore struct {
	sessions map[string]*entity.Session
	entries  map[string]map[string]*entity.Entry
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*entity.Session{}, entries: map[string]map[string]*entity.Entry{}}
}
func (s *memStore) SaveSession(_ context.Context, sess *entity.Session) error {
	s.sessions[sess.ID()] = sess
	return nil
}
func (s *memStore) FindSession(_ context.Context, id string) (*entity.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return sess, nil
}
func (s *memStore) ListSessions(_ context.Context, _, _ int) ([]*entity.Session, error) { return nil, nil }
func (s *memStore) AppendEntry(_ context.Context, sessionID string, e *entity.Entry) error {
	if s.entries[sessionID] == nil {
		s.entries[sessionID] = map[string]*entity.Entry{}
	}
	s.entries[sessionID][e.ID()] = e
	return nil
}
func (s *memStore) FindEntry(_ context.Context, sessionID, entryID string) (*entity.Entry, error) {
	e, ok := s.entries[sessionID][entryID]
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

var _ repository.SessionStore = (*memStore)(nil)

type stubSink struct {
	events []string
}

func (s *stubSink) Emit(_ context.Context, kind string, _ map[string]any) {
	s.events = append(s.events, kind)
}

type scriptedAdapter struct {
	responses []llm.Response
	calls     int
}

func (a *scriptedAdapter) Name() string                           { return "scripted" }
func (a *scriptedAdapter) SupportsModel(string) bool               { return true }
func (a *scriptedAdapter) IsAvailable(context.Context) bool        { return true }
func (a *scriptedAdapter) Complete(context.Context, llm.Request) (llm.Response, error) {
	resp := a.responses[a.calls]
	if a.calls < len(a.responses)-1 {
		a.calls++
	}
	return resp, nil
}

func buildLoop(t *testing.T, adapter llm.Adapter) (*Loop, *session.Manager, *entity.Session, *stubSink) {
	t.Helper()
	store := newMemStore()
	mgr := session.NewManager(store, zap.NewNop())
	sess, err := mgr.CreateSession(context.Background(), "t")
	require.NoError(t, err)

	contracts := toolcontract.NewRegistry()
	tc, err := entity.NewToolContract("fs.read_text", "read a file", nil, "fs.read", false)
	require.NoError(t, err)
	require.NoError(t, contracts.Register(tc))

	providers := toolprovider.NewRegistry()
	providers.RegisterCapability("fs.read", entity.CapabilityPolicy{Verification: entity.VerifyNever, MaxRetries: 1})
	require.NoError(t, providers.RegisterProvider("local", "fs.read", 1, nil, func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
		return map[string]any{"output": "file contents", "verified": true}, nil
	}))

	registry := llm.NewRegistry(zap.NewNop())
	registry.Add(adapter)
	resolver := llm.NewProfileResolver(map[llm.Role]llm.Profile{
		llm.RoleDefault: {Provider: "scripted", Model: "m1", RetryCap: 1, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond},
	})
	runner := llm.NewRunner(registry, resolver, hook.NewRunner(), zap.NewNop())

	sink := &stubSink{}
	loop := NewLoop(mgr, contracts, providers, runner, hook.NewRunner(), sink, nil, nil, zap.NewNop())
	return loop, mgr, sess, sink
}

func TestLoop_CompletesWithoutToolCalls(t *testing.T) {
	adapter := &scriptedAdapter{responses: []llm.Response{{Text: "final answer"}}}
	loop, _, sess, _ := buildLoop(t, adapter)
	sm := NewStateMachine(10, nil)

	status, err := loop.Run(context.Background(), sm, sess, llm.RoleDefault)
	require.NoError(t, err)
	require.Equal(t, TerminalDone, status)
}

func TestLoop_DispatchesToolCallAndContinues(t *testing.T) {
	adapter := &scriptedAdapter{responses: []llm.Response{
		{Text: "let me check", ToolCalls: []llm.ToolCallRequest{{ID: "c1", Name: "fs.read_text", Arguments: map[string]any{"target": "a.txt"}}}},
		{Text: "done"},
	}}
	loop, _, sess, _ := buildLoop(t, adapter)
	sm := NewStateMachine(10, nil)

	status, err := loop.Run(context.Background(), sm, sess, llm.RoleDefault)
	require.NoError(t, err)
	require.Equal(t, TerminalDone, status)
}

func TestLoop_RegenerateOnLatestAssistantKeepsSameSession(t *testing.T) {
	adapter := &scriptedAdapter{responses: []llm.Response{{Text: "x"}}}
	loop, mgr, sess, sink := buildLoop(t, adapter)

	entry, err := mgr.AppendEntry(context.Background(), sess, "", entity.RoleAssistant, valueobject.NewMessageContent("x", valueobject.ContentTypeText))
	require.NoError(t, err)

	result, err := loop.Regenerate(context.Background(), sess, entry.ID(), true)
	require.NoError(t, err)
	require.Equal(t, sess.ID(), result.ID())
	require.Contains(t, sink.events, "run.regenerate.placeholder")
}

func TestLoop_RegenerateOnHistoricalAssistantForks(t *testing.T) {
	adapter := &scriptedAdapter{responses: []llm.Response{{Text: "x"}}}
	loop, mgr, sess, _ := buildLoop(t, adapter)

	entry, err := mgr.AppendEntry(context.Background(), sess, "", entity.RoleAssistant, valueobject.NewMessageContent("x", valueobject.ContentTypeText))
	require.NoError(t, err)

	fork, err := loop.Regenerate(context.Background(), sess, entry.ID(), false)
	require.NoError(t, err)
	require.NotEqual(t, sess.ID(), fork.ID())
	require.True(t, fork.IsFork())
}
