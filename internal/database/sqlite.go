package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/promptweave-ai/promptweave/backend/internal/chats"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"github.com/promptweave-ai/promptweave/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates or updates the schema for every aggregate.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.Account{},
		&chats.Chat{},
		&messages.Message{},
		&templates.Template{},
		&collab.Collaboration{},
		&promptgen.Generation{},
		&promptgen.Session{},
	)
}
