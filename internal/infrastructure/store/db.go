// Package store implements the Session Store (spec.md §4.1): a
// gorm-backed, chunked, append-only keyspace for session metadata, entry
// branches, and trace pages, fronting the repository.SessionStore and
// repository.TraceStore ports the domain layer depends on.
//
// Grounded on the teacher's internal/infrastructure/persistence/db.go
// (dialector selection, AutoMigrate-on-connect) and
// gorm_message_repository.go (repository-port-over-gorm-model pattern),
// generalized from the teacher's single flat message table to the
// chunked session/entry/trace keyspace spec.md §4.1 requires.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fenwicklabs/brainloop/internal/infrastructure/config"
)

// NewDBConnection opens a gorm connection per cfg and migrates every
// table this package owns.
func NewDBConnection(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SessionModel{},
		&EntryModel{},
		&TraceModel{},
		&SeqCounterModel{},
		&LegacyStateModel{},
	)
}
