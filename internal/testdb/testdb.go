// Package testdb opens throwaway SQLite databases for unit tests.
package testdb

import (
	"fmt"
	"testing"

	"roastkit/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an in-memory database with the full schema. Each call gets its
// own database; a single connection keeps SQLite transactions serialised the
// way row locks serialise them on Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// SeedUser inserts a user whose password is "password123".
func SeedUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{Username: username, FullName: "Test " + username, PasswordHash: string(hash), Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

// SeedVariety inserts a variety with the given green and roasted stock.
func SeedVariety(t *testing.T, db *gorm.DB, name string, green, roasted int) *model.BeanVariety {
	t.Helper()
	v := &model.BeanVariety{Name: name, StockGreen: green, StockRoasted: roasted}
	require.NoError(t, db.Create(v).Error)
	return v
}

// Reload reads a variety back from the database.
func Reload(t *testing.T, db *gorm.DB, id uuid.UUID) *model.BeanVariety {
	t.Helper()
	var v model.BeanVariety
	require.NoError(t, db.First(&v, "id = ?", id).Error)
	return &v
}
