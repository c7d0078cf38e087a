package entity

import (
	"time"

	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

// EntryRole identifies the speaker/origin of an entry in the branch.
type EntryRole string

const (
	RoleUser          EntryRole = "user"
	RoleAssistant     EntryRole = "assistant"
	RoleTool          EntryRole = "tool"
	RoleSystemSummary EntryRole = "system_summary"
)

// ToolCallRef is the assistant-declared intent to invoke a tool. An Entry
// with Role == RoleTool carries the matching ToolResultRef and must
// reference a ToolCallRef that exists earlier on the same branch —
// violating that is ErrDanglingToolCall.
type ToolCallRef struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResultRef is the outcome of executing a ToolCallRef.
type ToolResultRef struct {
	ToolCallID string
	Output     string
	Success    bool
	ErrorCode  string
}

// Entry is one immutable node in a session's entry DAG. Entries are never
// mutated after creation — compaction and transform produce new entries
// (a system-summary entry, a synthetic errored tool entry) rather than
// editing existing ones.
type Entry struct {
	id         string
	parentID   string // empty for a root entry
	role       EntryRole
	content    valueobject.MessageContent
	toolCall   *ToolCallRef
	toolResult *ToolResultRef
	createdAt  time.Time
}

// NewEntry creates a fresh entry. parentID may be empty only for the
// first entry of a root (non-forked) session.
func NewEntry(id, parentID string, role EntryRole, content valueobject.MessageContent) (*Entry, error) {
	if id == "" {
		return nil, ErrInvalidEntryID
	}
	return &Entry{
		id:        id,
		parentID:  parentID,
		role:      role,
		content:   content,
		createdAt: time.Now(),
	}, nil
}

// NewToolCallEntry creates an assistant entry declaring a tool call.
func NewToolCallEntry(id, parentID string, content valueobject.MessageContent, call ToolCallRef) (*Entry, error) {
	e, err := NewEntry(id, parentID, RoleAssistant, content)
	if err != nil {
		return nil, err
	}
	e.toolCall = &call
	return e, nil
}

// NewToolResultEntry creates a tool-role entry carrying the result of a
// prior tool call. callExistsOnBranch must be verified by the caller
// (SessionManager walks the branch) before construction — this
// constructor rejects an empty reference or a false callExistsOnBranch
// with ErrDanglingToolCall, and does no branch walk of its own.
func NewToolResultEntry(id, parentID string, result ToolResultRef, callExistsOnBranch bool) (*Entry, error) {
	if result.ToolCallID == "" {
		return nil, ErrDanglingToolCall
	}
	if !callExistsOnBranch {
		return nil, ErrDanglingToolCall
	}
	e, err := NewEntry(id, parentID, RoleTool, valueobject.MessageContent{})
	if err != nil {
		return nil, err
	}
	e.toolResult = &result
	return e, nil
}

// NewSystemSummaryEntry creates a compaction summary entry. Its parentID
// is the entry being compacted away; the session leaf is then rewound to
// point past the compacted range.
func NewSystemSummaryEntry(id, parentID string, content valueobject.MessageContent) (*Entry, error) {
	return NewEntry(id, parentID, RoleSystemSummary, content)
}

// ReconstructEntry rebuilds an entry from persisted state.
func ReconstructEntry(id, parentID string, role EntryRole, content valueobject.MessageContent, toolCall *ToolCallRef, toolResult *ToolResultRef, createdAt time.Time) *Entry {
	return &Entry{
		id:         id,
		parentID:   parentID,
		role:       role,
		content:    content,
		toolCall:   toolCall,
		toolResult: toolResult,
		createdAt:  createdAt,
	}
}

func (e *Entry) ID() string                      { return e.id }
func (e *Entry) ParentID() string                { return e.parentID }
func (e *Entry) IsRoot() bool                    { return e.parentID == "" }
func (e *Entry) Role() EntryRole                 { return e.role }
func (e *Entry) Content() valueobject.MessageContent { return e.content }
func (e *Entry) ToolCall() *ToolCallRef          { return e.toolCall }
func (e *Entry) ToolResult() *ToolResultRef      { return e.toolResult }
func (e *Entry) CreatedAt() time.Time            { return e.createdAt }

// HasToolCall reports whether this entry declares a tool invocation.
func (e *Entry) HasToolCall() bool { return e.toolCall != nil }

// IsToolResult reports whether this entry carries a tool outcome.
func (e *Entry) IsToolResult() bool { return e.role == RoleTool && e.toolResult != nil }
