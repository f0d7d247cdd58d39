package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-access-backend/config"
	"campus-access-backend/internal/db/migrations"
	"campus-access-backend/internal/model"
)

// gooseUp is a seam for testing migrations without a live server.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// partialIndexes back the "at most one open" invariants at the storage level.
// AutoMigrate cannot express WHERE clauses, so sqlite gets them here; postgres
// gets the same statements from the goose migrations.
var partialIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_presence_one_open ON presence_records (location, tag_uid) WHERE entry_time IS NOT NULL AND exit_time IS NULL",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_one_active ON tags (student_usn) WHERE status = 'active'",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_book_one_open_loan ON book_transactions (book_id) WHERE return_date IS NULL",
}

// Init initializes the database connection and runs migrations.
func Init(ctx context.Context, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey on both drivers.
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn), TranslateError: true}
	if cfg.LogSQL {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	switch cfg.Driver {
	case "sqlite":
		return initSQLite(cfg, gormCfg)
	case "postgres", "":
		return initPostgres(ctx, cfg, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func initPostgres(ctx context.Context, cfg *config.DatabaseConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running database migrations...")
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUp(ctx, sqlDB, "."); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

func initSQLite(cfg *config.DatabaseConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// A second connection would see "database table is locked" while a
	// transaction is open, so sqlite always runs on one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the schema through gorm. It is used for sqlite deployments
// and tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Student{},
		&model.Tag{},
		&model.PresenceRecord{},
		&model.Alert{},
		&model.Operator{},
		&model.BookTransaction{},
		&model.PushSubscription{},
		&model.SubscriptionLocation{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	for _, ddl := range partialIndexes {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
