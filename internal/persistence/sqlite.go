package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite wraps a database/sql handle on a modernc SQLite file.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: wal: %w", err)
	}

	s := &SQLite{DB: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("opened sqlite store", zap.String("path", path))
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			identifier  TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL,
			channel_ref TEXT NOT NULL,
			media       TEXT NOT NULL DEFAULT '[]',
			created_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_identifier ON tickets(identifier);
		CREATE INDEX IF NOT EXISTS idx_tickets_channel_ref ON tickets(channel_ref);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Ping verifies the database is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("sqlite not configured")
	}
	return s.DB.PingContext(ctx)
}
