// Package test holds helpers for exercising store drivers.
package test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/store"
	"github.com/hrygo/agentcore/store/db"
)

// DriverFromEnv returns DRIVER, defaulting to sqlite.
func DriverFromEnv() string {
	if driver := os.Getenv("DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}

// NewTestingStore opens a migrated store. SQLite runs in memory; postgres
// needs POSTGRES_TEST_DSN and is skipped otherwise.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Driver: DriverFromEnv()}
	switch p.Driver {
	case "postgres":
		p.DSN = os.Getenv("POSTGRES_TEST_DSN")
		if p.DSN == "" {
			t.Skip("POSTGRES_TEST_DSN not set")
		}
	default:
		p.DSN = ":memory:"
	}

	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	s := store.New(driver)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}
