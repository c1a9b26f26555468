// Package database handles database connections and migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"vibely/internal/config"
	"vibely/internal/middleware"
	"vibely/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the primary connection opened by Connect.
var DB *gorm.DB

var readDB *gorm.DB

// GetReadDB returns the read replica connection, or nil when none is configured.
func GetReadDB() *gorm.DB {
	return readDB
}

// pgEndpoint is one postgres server to connect to.
type pgEndpoint struct {
	host, port, user, password, name, sslMode string
}

func (e pgEndpoint) dsn() string {
	ssl := e.sslMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		e.host, e.port, e.user, e.password, e.name, ssl)
}

// Connect opens the configured database, migrates it outside production and,
// for postgres with DB_READ_HOST set, opens the read replica. An unreachable
// replica is logged and reads stay on the primary.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: newGormLogger(middleware.Logger, logger.Warn)}

	db, err := openPrimary(cfg, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	middleware.Logger.Info("database connected", slog.String("driver", cfg.DBDriver))

	if !cfg.IsProduction() {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	if cfg.DBDriver == "postgres" && cfg.DBReadHost != "" {
		replica, err := openPostgres(pgEndpoint{
			host: cfg.DBReadHost, port: cfg.DBReadPort, user: cfg.DBReadUser,
			password: cfg.DBReadPassword, name: cfg.DBName, sslMode: cfg.DBSSLMode,
		}, gcfg)
		if err != nil {
			middleware.Logger.Warn("read replica unavailable, reading from primary", slog.String("error", err.Error()))
		} else {
			readDB = replica
		}
	}

	DB = db
	return db, nil
}

func openPrimary(cfg *config.Config, gcfg *gorm.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "sqlite" {
		return gorm.Open(sqlite.Open(cfg.DBSQLitePath), gcfg)
	}
	return openPostgres(pgEndpoint{
		host: cfg.DBHost, port: cfg.DBPort, user: cfg.DBUser,
		password: cfg.DBPassword, name: cfg.DBName, sslMode: cfg.DBSSLMode,
	}, gcfg)
}

// openPostgres opens a pgx-backed database/sql pool, checks it answers and
// hands it to GORM.
func openPostgres(ep pgEndpoint, gcfg *gorm.Config) (*gorm.DB, error) {
	pool, err := sql.Open("pgx", ep.dsn())
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: pool}), gcfg)
}

// Migrate creates or updates every table the application uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Like{},
		&models.Comment{},
		&models.CommentLike{},
		&models.ChatMessage{},
		&models.ChatThread{},
		&models.Image{},
	)
}

// OpenInMemory returns a migrated in-memory SQLite database, used by tests and
// local tooling.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
