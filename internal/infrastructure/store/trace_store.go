package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	domainErrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// GormTraceStore implements repository.TraceStore over trace:{id}:{chunk}.
type GormTraceStore struct {
	db *gorm.DB
}

// NewGormTraceStore creates a gorm-backed trace store.
func NewGormTraceStore(db *gorm.DB) repository.TraceStore {
	return &GormTraceStore{db: db}
}

func (s *GormTraceStore) AppendTrace(ctx context.Context, sessionID string, event *entity.TraceEvent) error {
	model := &TraceModel{
		SessionID:  sessionID,
		Seq:        event.Seq(),
		TraceID:    event.TraceID(),
		ChunkIndex: int(event.Seq() / entriesPerChunk),
		Kind:       string(event.Kind()),
		Payload:    event.Payload(),
		CreatedAt:  event.CreatedAt(),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to append trace event: " + err.Error())
	}
	return nil
}

// ReadTrace returns events strictly after afterSeq, bounded by maxEvents
// and maxBytes — whichever limit is hit first determines cutBy, matching
// spec.md §4.12's stream_trace contract.
func (s *GormTraceStore) ReadTrace(ctx context.Context, sessionID string, afterSeq uint64, maxEvents int, maxBytes int) ([]*entity.TraceEvent, bool, string, error) {
	var rows []TraceModel
	q := s.db.WithContext(ctx).
		Where("session_id = ? AND seq > ?", sessionID, afterSeq).
		Order("seq asc")
	if maxEvents > 0 {
		q = q.Limit(maxEvents + 1) // fetch one extra to detect truncation
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, false, "", domainErrors.NewInternalError("failed to read trace: " + err.Error())
	}

	events := make([]*entity.TraceEvent, 0, len(rows))
	totalBytes := 0
	truncated := false
	cutBy := ""
	for i, row := range rows {
		if maxEvents > 0 && i >= maxEvents {
			truncated = true
			cutBy = "max_events"
			break
		}
		if maxBytes > 0 && totalBytes+len(row.Payload) > maxBytes {
			truncated = true
			cutBy = "max_bytes"
			break
		}
		events = append(events, entity.ReconstructTraceEvent(row.SessionID, row.TraceID, row.Seq, entity.TraceKind(row.Kind), row.Payload, row.CreatedAt))
		totalBytes += len(row.Payload)
	}
	return events, truncated, cutBy, nil
}

// NextSeq allocates the next monotonic sequence number for sessionID,
// using a row-level lock so concurrent tool dispatch across goroutines
// never hands out the same seq twice (spec.md §3: seq is the ordering
// key under parallel tool dispatch).
func (s *GormTraceStore) NextSeq(ctx context.Context, sessionID string) (uint64, error) {
	var next uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter SeqCounterModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			First(&counter).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter = SeqCounterModel{SessionID: sessionID, Seq: 1}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			counter.Seq++
			if err := tx.Save(&counter).Error; err != nil {
				return err
			}
		}
		next = counter.Seq
		return nil
	})
	if err != nil {
		return 0, domainErrors.NewInternalError("failed to allocate trace seq: " + err.Error())
	}
	return next, nil
}
