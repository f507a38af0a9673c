// Package database opens the SQL database behind the catalog store: Postgres
// when reachable, SQLite otherwise.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the shared in-memory SQLite database.
const MemoryDSN = "file::memory:?cache=shared"

const pingTimeout = 5 * time.Second

// ErrNotConnected is returned by operations that need an open database.
var ErrNotConnected = errors.New("database not connected")

// Settings are the db.* config keys.
type Settings struct {
	Host       string
	Port       string
	Username   string
	Password   string
	Database   string
	SqlitePath string
}

// SettingsFromConfig reads the db.* keys.
func SettingsFromConfig() Settings {
	return Settings{
		Host:       viper.GetString("db.host"),
		Port:       viper.GetString("db.port"),
		Username:   viper.GetString("db.username"),
		Password:   viper.GetString("db.password"),
		Database:   viper.GetString("db.database"),
		SqlitePath: viper.GetString("db.sqlitePath"),
	}
}

// PostgresDSN builds the libpq connection string.
func (s Settings) PostgresDSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		s.Host, s.Port, s.Username, s.Password, s.Database)
}

// Manager owns the database connection.
type Manager struct {
	DB      *gorm.DB
	SqlDB   *sql.DB
	IsValid bool
	IsLocal bool
	Logger  zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect opens Postgres with the given settings and falls back to SQLite
// at SqlitePath (in memory when empty) if it cannot be reached.
func (m *Manager) Connect(ctx context.Context, s Settings) error {
	db, err := OpenPostgres(s.PostgresDSN())
	if err == nil {
		err = m.use(ctx, db)
	}
	if err != nil {
		m.Logger.Error().Err(err).Str("host", s.Host).Msg("Postgres unavailable, falling back to SQLite")
		return m.useSqlite(ctx, s.SqlitePath)
	}

	m.SqlDB.SetMaxOpenConns(10)
	m.Logger.Info().Str("host", s.Host).Str("database", s.Database).Msg("Connected to Postgres")
	return nil
}

func (m *Manager) useSqlite(ctx context.Context, path string) error {
	db, err := OpenSqlite(path)
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	if err := m.use(ctx, db); err != nil {
		return err
	}
	m.IsLocal = true
	if path == "" {
		m.Logger.Warn().Msg("Using in-memory SQLite DB, the catalog will not survive a restart")
	} else {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	}
	return nil
}

// use validates db and adopts it.
func (m *Manager) use(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	m.DB, m.SqlDB, m.IsValid = db, sqlDB, true
	return nil
}

// Dialect names the connected database, or "" before Connect.
func (m *Manager) Dialect() string {
	if m.DB == nil {
		return ""
	}
	return m.DB.Dialector.Name()
}

// OpenPostgres opens a Postgres connection pool for dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSqlite opens the SQLite file at path, or MemoryDSN when path is empty.
func OpenSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// Setup migrates the given models.
func (m *Manager) Setup(models ...any) error {
	if m.DB == nil {
		return ErrNotConnected
	}
	if err := m.DB.AutoMigrate(models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Debug().Int("models", len(models)).Msg("Schema migrated")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}
