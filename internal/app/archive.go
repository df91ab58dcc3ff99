package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"becoin/internal/db"
	"becoin/internal/engine"
	"becoin/internal/events"
	"becoin/internal/export"
	"becoin/internal/migrate"
	"becoin/internal/repo"
)

// Archive bundles the sqlite audit trail: the change feed and exported
// snapshots.
type Archive struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	logger *slog.Logger
}

// OpenArchive opens and migrates the archive under workspace, or at path when
// it is set.
func OpenArchive(ctx context.Context, workspace, path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Path: path})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	logger.Debug("archive ready", "schema_version", version)
	return &Archive{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		logger: logger,
	}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Attach records every engine change. Write failures are logged and do not
// affect the engine.
func (a *Archive) Attach(e *engine.Engine) {
	e.Observe(func(c engine.Change) {
		if err := a.Events.Append(context.Background(), nil, c); err != nil {
			a.logger.Warn("archive event failed", "op", c.Op, "err", err)
		}
	})
}

// RecordSnapshot exports the engine state and stores it.
func (a *Archive) RecordSnapshot(ctx context.Context, e *engine.Engine, label string) (repo.SnapshotRecord, error) {
	return a.Repo.RecordSnapshot(ctx, export.Build(e.Snapshot()), label)
}
