package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
	domainErrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// GormSessionStore implements repository.SessionStore over the chunked
// keyspace described in models.go.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore creates a gorm-backed session store.
func NewGormSessionStore(db *gorm.DB) repository.SessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) SaveSession(ctx context.Context, session *entity.Session) error {
	model := sessionToModel(session)
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to save session: " + err.Error())
	}
	return nil
}

func (s *GormSessionStore) FindSession(ctx context.Context, id string) (*entity.Session, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrSessionNotFound
		}
		return nil, domainErrors.NewInternalError("failed to find session: " + err.Error())
	}
	return modelToSession(&model), nil
}

func (s *GormSessionStore) ListSessions(ctx context.Context, limit, offset int) ([]*entity.Session, error) {
	var rows []SessionModel
	q := s.db.WithContext(ctx).Order("updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list sessions: " + err.Error())
	}
	out := make([]*entity.Session, 0, len(rows))
	for i := range rows {
		out = append(out, modelToSession(&rows[i]))
	}
	return out, nil
}

// AppendEntry inserts entry as the next position in sessionID's entry
// chunks. The insert is a single atomic row write, satisfying spec.md
// §4.1's "atomic per key" requirement without needing a separate
// read-modify-write of a chunk blob.
func (s *GormSessionStore) AppendEntry(ctx context.Context, sessionID string, entry *entity.Entry) error {
	var nextPos int64
	if err := s.db.WithContext(ctx).Model(&EntryModel{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(position), -1) + 1").
		Scan(&nextPos).Error; err != nil {
		return domainErrors.NewInternalError("failed to compute entry position: " + err.Error())
	}

	model, err := entryToModel(sessionID, entry, nextPos)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to append entry: " + err.Error())
	}
	return nil
}

func (s *GormSessionStore) FindEntry(ctx context.Context, sessionID, entryID string) (*entity.Entry, error) {
	var model EntryModel
	if err := s.db.WithContext(ctx).First(&model, "session_id = ? AND id = ?", sessionID, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrInvalidEntryID
		}
		return nil, domainErrors.NewInternalError("failed to find entry: " + err.Error())
	}
	return modelToEntry(&model)
}

// ReadAllEntries concatenates every chunk for sessionID in position
// order. A row whose JSON columns fail to parse is treated as the chunk
// boundary where the stream ends (spec.md §4.1's corrupt-chunk fail
// mode) rather than aborting the whole read or touching prior rows.
func (s *GormSessionStore) ReadAllEntries(ctx context.Context, sessionID string) ([]*entity.Entry, bool, error) {
	var rows []EntryModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position asc").
		Find(&rows).Error; err != nil {
		return nil, false, domainErrors.NewInternalError("failed to read entries: " + err.Error())
	}

	out := make([]*entity.Entry, 0, len(rows))
	for i := range rows {
		e, err := modelToEntry(&rows[i])
		if err != nil {
			return out, true, nil
		}
		out = append(out, e)
	}
	return out, false, nil
}

func sessionToModel(session *entity.Session) *SessionModel {
	m := &SessionModel{
		ID:        session.ID(),
		Title:     session.Title(),
		LeafID:    session.LeafID(),
		Status:    string(session.Status()),
		RoutePref: session.RoutePreference(),
		CreatedAt: session.CreatedAt(),
		UpdatedAt: session.UpdatedAt(),
	}
	if fork := session.Fork(); fork != nil {
		m.ForkParentID = fork.ParentSessionID
		m.ForkLeafID = fork.ParentLeafID
	}
	return m
}

func modelToSession(m *SessionModel) *entity.Session {
	var fork *entity.ForkRef
	if m.ForkParentID != "" {
		fork = &entity.ForkRef{ParentSessionID: m.ForkParentID, ParentLeafID: m.ForkLeafID}
	}
	return entity.ReconstructSession(m.ID, m.Title, m.LeafID, entity.SessionStatus(m.Status), m.RoutePref, fork, m.CreatedAt, m.UpdatedAt)
}

func entryToModel(sessionID string, e *entity.Entry, position int64) (*EntryModel, error) {
	m := &EntryModel{
		ID:          e.ID(),
		SessionID:   sessionID,
		ParentID:    e.ParentID(),
		ChunkIndex:  int(position / entriesPerChunk),
		Position:    position,
		Role:        string(e.Role()),
		ContentText: e.Content().Text(),
		ContentType: string(e.Content().ContentType()),
		CreatedAt:   e.CreatedAt(),
	}
	if call := e.ToolCall(); call != nil {
		b, err := json.Marshal(call)
		if err != nil {
			return nil, domainErrors.NewInternalError("failed to marshal tool call: " + err.Error())
		}
		m.ToolCallJSON = string(b)
	}
	if result := e.ToolResult(); result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, domainErrors.NewInternalError("failed to marshal tool result: " + err.Error())
		}
		m.ToolResultJSON = string(b)
	}
	return m, nil
}

func modelToEntry(m *EntryModel) (*entity.Entry, error) {
	var call *entity.ToolCallRef
	if m.ToolCallJSON != "" {
		call = &entity.ToolCallRef{}
		if err := json.Unmarshal([]byte(m.ToolCallJSON), call); err != nil {
			return nil, fmt.Errorf("corrupt tool_call column for entry %s: %w", m.ID, err)
		}
	}
	var result *entity.ToolResultRef
	if m.ToolResultJSON != "" {
		result = &entity.ToolResultRef{}
		if err := json.Unmarshal([]byte(m.ToolResultJSON), result); err != nil {
			return nil, fmt.Errorf("corrupt tool_result column for entry %s: %w", m.ID, err)
		}
	}
	content := valueobject.NewMessageContent(m.ContentText, valueobject.ContentType(m.ContentType))
	return entity.ReconstructEntry(m.ID, m.ParentID, entity.EntryRole(m.Role), content, call, result, m.CreatedAt), nil
}
