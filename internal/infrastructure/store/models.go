package store

import "time"

// SessionModel is session:{id}:meta. Querying this table ordered by
// updated_at also serves as session:index — a dedicated index table would
// only duplicate what this one already orders.
type SessionModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Title         string `gorm:"size:255"`
	LeafID        string `gorm:"size:64"`
	Status        string `gorm:"size:32;index"`
	RoutePref     string `gorm:"size:64"`
	ForkParentID  string `gorm:"size:64"`
	ForkLeafID    string `gorm:"size:64"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (SessionModel) TableName() string { return "sessions" }

// EntryModel is one row of session:{id}:entries:{chunk}. ChunkIndex
// groups rows into fixed-size chunks (entriesPerChunk); Position is the
// append-order ordinal within the session, the ordering key
// ReadAllEntries concatenates chunks by.
type EntryModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SessionID      string `gorm:"index;size:64;not null"`
	ParentID       string `gorm:"size:64"`
	ChunkIndex     int    `gorm:"index"`
	Position       int64  `gorm:"index"`
	Role           string `gorm:"size:32;not null"`
	ContentText    string `gorm:"type:text"`
	ContentType    string `gorm:"size:32"`
	ToolCallJSON   string `gorm:"type:text"` // non-empty iff the entry declares a tool call
	ToolResultJSON string `gorm:"type:text"` // non-empty iff the entry carries a tool result
	CreatedAt      time.Time
}

func (EntryModel) TableName() string { return "session_entries" }

// TraceModel is one row of trace:{id}:{chunk}, chunked by ChunkIndex the
// same way EntryModel is; Seq is the monotonic per-session ordering key
// spec.md §3 requires (never CreatedAt).
type TraceModel struct {
	SessionID  string `gorm:"primaryKey;size:64"`
	Seq        uint64 `gorm:"primaryKey"`
	TraceID    string `gorm:"size:64"`
	ChunkIndex int    `gorm:"index"`
	Kind       string `gorm:"size:32"`
	Payload    []byte `gorm:"type:blob"`
	CreatedAt  time.Time
}

func (TraceModel) TableName() string { return "session_trace" }

// SeqCounterModel backs NextSeq's per-session monotonic counter.
type SeqCounterModel struct {
	SessionID string `gorm:"primaryKey;size:64"`
	Seq       uint64
}

func (SeqCounterModel) TableName() string { return "session_trace_seq" }

// LegacyStateModel detects a pre-migration monolithic state blob at
// bootstrap (spec.md §4.1's legacy-key detection). The teacher's repo
// never had a predecessor persistence format, so this table is only ever
// populated by a migration tool external to this package; its presence
// here is the contract Bootstrap checks against.
type LegacyStateModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Data      []byte `gorm:"type:blob"`
	Archived  bool
	CreatedAt time.Time
}

func (LegacyStateModel) TableName() string { return "legacy_state" }

// entriesPerChunk is the fixed chunk size spec.md §4.1 calls for.
const entriesPerChunk = 500
