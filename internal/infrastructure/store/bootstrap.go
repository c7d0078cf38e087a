package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domainErrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// legacyStateID is the fixed identifier a pre-chunked-keyspace migration
// tool would have written the monolithic state blob under.
const legacyStateID = "monolithic"

// BootstrapNotifier receives the single event Bootstrap emits when it
// archives a legacy state blob, kept narrow so this package doesn't
// depend on the event bus.
type BootstrapNotifier interface {
	Emit(ctx context.Context, kind string, payload map[string]any)
}

// Bootstrap detects a legacy monolithic state key left by a predecessor
// persistence format (spec.md §4.1). If found, it is marked archived in
// place — never deleted — and a bootstrap notification is emitted;
// callers otherwise start from an empty chunked keyspace. Returns
// whether a legacy blob was archived.
func Bootstrap(ctx context.Context, db *gorm.DB, notifier BootstrapNotifier) (bool, error) {
	var legacy LegacyStateModel
	err := db.WithContext(ctx).First(&legacy, "id = ?", legacyStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domainErrors.NewInternalError("failed to probe legacy state: " + err.Error())
	}
	if legacy.Archived {
		return false, nil
	}

	legacy.Archived = true
	if err := db.WithContext(ctx).Save(&legacy).Error; err != nil {
		return false, domainErrors.NewInternalError("failed to archive legacy state: " + err.Error())
	}
	if notifier != nil {
		notifier.Emit(ctx, "store.bootstrap.legacy_archived", map[string]any{"id": legacy.ID, "bytes": len(legacy.Data)})
	}
	return true, nil
}
