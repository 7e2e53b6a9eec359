// Package testutil provides an in-memory database with the application
// schema for tests.
package testutil

import (
	"testing"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory SQLite database. One connection
// only: SQLite gives every connection its own :memory: database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&auth.User{},
		&vote.Vote{},
		&vote.VoteResponse{},
		&jobs.VoteJob{},
		&jobs.PostJob{},
		&jobs.WorkerHeartbeat{},
	))
	return gdb
}

// SeedUser inserts a user, optionally authorized with an access token.
func SeedUser(t *testing.T, gdb *gorm.DB, email string, accessToken *string) *auth.User {
	t.Helper()
	u := &auth.User{
		Email:        email,
		PasswordHash: "x",
		AccessToken:  accessToken,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}
