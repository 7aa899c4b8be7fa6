// Package app assembles the process-scoped services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/http/handlers"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/persistence"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
)

// Store is an opened ticket store.
type Store struct {
	Tickets repository.TicketRepository
	Pinger  handlers.Pinger
	close   func()
}

// Close releases the underlying connection.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStore connects the driver selected by cfg.Store.Driver. Postgres
// migrations run when migrate is true.
func OpenStore(ctx context.Context, cfg config.StoreConfig, migrate bool, logger *zap.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Tickets: repository.NewSQLiteTicketRepository(db.DB),
			Pinger:  db,
			close:   db.Close,
		}, nil
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return &Store{
			Tickets: repository.NewTicketRepository(pg.PoolHandle()),
			Pinger:  pg,
			close:   pg.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
