package dataset

import (
	"context"
	"fmt"

	"oncostats/pkg/database"
	"oncostats/pkg/utils"
)

// Pinger is implemented by sources that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open builds the table source cfg selects. The returned close func
// releases the database handle, if any.
func Open(cfg utils.Config) (TableSource, func() error, error) {
	if cfg.Source == utils.SourceCSV {
		return NewCSVDir(cfg.DataDir), func() error { return nil }, nil
	}
	store, err := OpenStore(cfg.Database())
	if err != nil {
		return nil, nil, err
	}
	return store, store.DB.Close, nil
}

// OpenStore opens and migrates the database behind a SQLStore.
func OpenStore(dbCfg database.Config) (*SQLStore, error) {
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate failed: %w", err)
	}
	return NewSQLStore(db, driverOf(dbCfg)), nil
}

func driverOf(c database.Config) string {
	if c.Driver == "" {
		return database.DriverSQLite
	}
	return c.Driver
}

