package cmd

import (
	"fmt"

	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/store"
	"github.com/classmgr/attendbot/internal/store/mysql"
	"github.com/classmgr/attendbot/internal/store/postgres"
)

// openStore opens the configured database backend and runs pending
// migrations.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres", "":
		st, err := postgres.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return st, nil
	case "mysql":
		st, err := mysql.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q (use postgres or mysql)", cfg.Database.Driver)
	}
}
