package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestSettingsFromConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.local")
	viper.Set("db.port", "5433")
	viper.Set("db.username", "rider")
	viper.Set("db.password", "secret")
	viper.Set("db.database", "trails")
	viper.Set("db.sqlitePath", "/var/lib/mtbmap/catalog.db")

	s := SettingsFromConfig()
	assert.Equal(t, "/var/lib/mtbmap/catalog.db", s.SqlitePath)
	assert.Equal(t,
		"host=db.local port=5433 user=rider password=secret dbname=trails sslmode=disable",
		s.PostgresDSN())
}

func TestManager_ConnectFallsBackToSqlite(t *testing.T) {
	m := NewManager(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "mtbmap.db")

	err := m.Connect(context.Background(), Settings{
		Host:       "127.0.0.1",
		Port:       "1",
		Username:   "postgres",
		Database:   "mtbmap",
		SqlitePath: path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.IsLocal)
	assert.Equal(t, "sqlite", m.Dialect())
	assert.FileExists(t, path)

	require.NoError(t, m.Setup(&sample{}))
	require.NoError(t, m.DB.Create(&sample{Name: "x"}).Error)
	var got sample
	require.NoError(t, m.DB.First(&got).Error)
	assert.Equal(t, "x", got.Name)
}

func TestOpenSqlite_Memory(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&sample{}))
	assert.True(t, db.Migrator().HasTable(&sample{}))
}

func TestManager_WithoutConnection(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.ErrorIs(t, m.Setup(&sample{}), ErrNotConnected)
	assert.Empty(t, m.Dialect())
	assert.NoError(t, m.Close())
}
