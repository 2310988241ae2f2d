package main

import (
	"context"
	"fmt"

	"github.com/semihsipahi/climblearn-api/internal/config"
	"github.com/semihsipahi/climblearn-api/internal/store"
)

// openStore builds the repository selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverMongo:
		repo, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
