// Package repotest provides throwaway SQLite databases for tests.
package repotest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jgirmay/livemesh/pkg/database"
	"github.com/jgirmay/livemesh/pkg/repository"
)

// NewDB opens an isolated in-memory database with every table migrated.
// A single connection keeps the shared-cache database alive and serializes writers.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewRegistry returns an initialized registry over a fresh database.
func NewRegistry(t testing.TB) *repository.Registry {
	t.Helper()

	reg := repository.NewRegistry(NewDB(t))
	require.NoError(t, reg.Initialize())
	return reg
}
