package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/store"
	"github.com/hrygo/agentcore/store/db/postgres"
	"github.com/hrygo/agentcore/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// PostgreSQL carries every feature; SQLite has no vector search. The memory
// driver is SQLite on a private in-memory database.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "memory":
		inMemory := *profile
		inMemory.DSN = ":memory:"
		driver, err = sqlite.NewDB(&inMemory)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres', 'sqlite' and 'memory' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
