package repository

import (
	"context"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
)

// SessionStore is the port the session domain layer depends on; the
// infrastructure layer (internal/infrastructure/store) implements it
// against gorm's chunked keyspace per spec.md §4.1. Defined here
// (domain) rather than infrastructure so the session manager never
// imports gorm directly — dependency inversion, as the teacher's
// repository package already establishes for its own aggregates.
type SessionStore interface {
	// SaveSession upserts session metadata (session:{id}:meta).
	SaveSession(ctx context.Context, session *entity.Session) error

	// FindSession loads session metadata by id.
	FindSession(ctx context.Context, id string) (*entity.Session, error)

	// ListSessions returns the session:index summary list, newest first.
	ListSessions(ctx context.Context, limit, offset int) ([]*entity.Session, error)

	// AppendEntry appends entry to session {id}'s entry chunks
	// (session:{id}:entries:{chunk}). Append-only; atomic per chunk key.
	AppendEntry(ctx context.Context, sessionID string, entry *entity.Entry) error

	// FindEntry looks up a single entry by id within a session's chunks.
	FindEntry(ctx context.Context, sessionID, entryID string) (*entity.Entry, error)

	// ReadAllEntries concatenates every chunk for a session in order. A
	// corrupt chunk is treated as end-of-stream, not a hard failure —
	// the returned bool reports whether truncation occurred.
	ReadAllEntries(ctx context.Context, sessionID string) ([]*entity.Entry, bool, error)
}

// TraceStore is the port for the append-only trace keyspace
// (trace:{id}:{chunk}), kept separate from SessionStore because trace
// writes must never block tool execution (spec.md §3 invariant v) and
// so get their own async write path in the infrastructure layer.
type TraceStore interface {
	// AppendTrace appends a trace event to session id's trace chunks.
	AppendTrace(ctx context.Context, sessionID string, event *entity.TraceEvent) error

	// ReadTrace returns up to maxEvents events (or until maxBytes is
	// exhausted) starting after afterSeq, along with whether the result
	// was truncated and by which limit.
	ReadTrace(ctx context.Context, sessionID string, afterSeq uint64, maxEvents int, maxBytes int) (events []*entity.TraceEvent, truncated bool, cutBy string, err error)

	// NextSeq returns the next monotonic sequence number for sessionID.
	NextSeq(ctx context.Context, sessionID string) (uint64, error)
}
