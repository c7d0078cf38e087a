package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	kinds []string
}

func (n *recordingNotifier) Emit(_ context.Context, kind string, _ map[string]any) {
	n.kinds = append(n.kinds, kind)
}

func TestBootstrap_NoLegacyStateIsNoop(t *testing.T) {
	db := openTestDB(t)
	archived, err := Bootstrap(context.Background(), db, nil)
	require.NoError(t, err)
	require.False(t, archived)
}

func TestBootstrap_ArchivesLegacyStateOnce(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&LegacyStateModel{ID: legacyStateID, Data: []byte("old")}).Error)

	notifier := &recordingNotifier{}
	archived, err := Bootstrap(context.Background(), db, notifier)
	require.NoError(t, err)
	require.True(t, archived)
	require.Contains(t, notifier.kinds, "store.bootstrap.legacy_archived")

	archived, err = Bootstrap(context.Background(), db, notifier)
	require.NoError(t, err)
	require.False(t, archived)
}
