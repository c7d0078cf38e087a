package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, autoMigrate(db))
	return db
}

func TestGormSessionStore_SaveAndFindRoundTrips(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)

	sess, err := entity.NewSession("s1", "hello")
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(context.Background(), sess))

	found, err := store.FindSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "hello", found.Title())
	require.False(t, found.IsFork())
}

func TestGormSessionStore_FindMissingSessionReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)
	_, err := store.FindSession(context.Background(), "missing")
	require.ErrorIs(t, err, entity.ErrSessionNotFound)
}

func TestGormSessionStore_AppendAndReadAllEntriesPreservesOrder(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)

	e1, err := entity.NewEntry("e1", "", entity.RoleUser, valueobject.NewMessageContent("hi", valueobject.ContentTypeText))
	require.NoError(t, err)
	e2, err := entity.NewEntry("e2", "e1", entity.RoleAssistant, valueobject.NewMessageContent("hello", valueobject.ContentTypeText))
	require.NoError(t, err)

	require.NoError(t, store.AppendEntry(context.Background(), "s1", e1))
	require.NoError(t, store.AppendEntry(context.Background(), "s1", e2))

	entries, truncated, err := store.ReadAllEntries(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, truncated)
	require.Len(t, entries, 2)
	require.Equal(t, "e1", entries[0].ID())
	require.Equal(t, "e2", entries[1].ID())
}

func TestGormSessionStore_FindEntryLooksUpWithinSession(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)

	e1, err := entity.NewEntry("e1", "", entity.RoleUser, valueobject.NewMessageContent("hi", valueobject.ContentTypeText))
	require.NoError(t, err)
	require.NoError(t, store.AppendEntry(context.Background(), "s1", e1))

	found, err := store.FindEntry(context.Background(), "s1", "e1")
	require.NoError(t, err)
	require.Equal(t, "hi", found.Content().Text())
}

func TestGormSessionStore_ToolCallRoundTripsThroughJSONColumn(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)

	call, err := entity.NewToolCallEntry("e1", "", valueobject.MessageContent{}, entity.ToolCallRef{ID: "c1", Name: "fs.read_text", Arguments: map[string]any{"path": "a.txt"}})
	require.NoError(t, err)
	require.NoError(t, store.AppendEntry(context.Background(), "s1", call))

	found, err := store.FindEntry(context.Background(), "s1", "e1")
	require.NoError(t, err)
	require.NotNil(t, found.ToolCall())
	require.Equal(t, "fs.read_text", found.ToolCall().Name)
}

func TestGormSessionStore_ListSessionsOrdersByUpdatedDesc(t *testing.T) {
	db := openTestDB(t)
	store := NewGormSessionStore(db)

	a, _ := entity.NewSession("a", "first")
	require.NoError(t, store.SaveSession(context.Background(), a))
	b, _ := entity.NewSession("b", "second")
	require.NoError(t, store.SaveSession(context.Background(), b))

	list, err := store.ListSessions(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID())
}
