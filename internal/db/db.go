package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forumcore/internal/config"
	"forumcore/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. SQLite connections are capped
// at one so that writers are serialized and in-memory databases survive
// for the lifetime of the pool.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return gdb, nil
}

// Migrate creates or updates every table the forum needs.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.Topic{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.View{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedTopics creates the default topics when none exist yet.
func SeedTopics(gdb *gorm.DB, log *slog.Logger) error {
	var count int64
	if err := gdb.Model(&models.Topic{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count topics: %w", err)
	}
	if count > 0 {
		log.Info("topics already seeded, skipping", "count", count)
		return nil
	}

	topics := []models.Topic{
		{Name: "Technology", Slug: "technology", Description: "Technology, programming and innovation", Color: "#3b82f6", Icon: "Laptop", Active: true},
		{Name: "Games", Slug: "games", Description: "Video games, reviews and discussion", Color: "#8b5cf6", Icon: "Gamepad2", Active: true},
		{Name: "Science", Slug: "science", Description: "Scientific discoveries and academic discussion", Color: "#10b981", Icon: "Microscope", Active: true},
		{Name: "Sports", Slug: "sports", Description: "Sports news and matches", Color: "#f59e0b", Icon: "Trophy", Active: true},
		{Name: "Off-topic", Slug: "off-topic", Description: "Anything else", Color: "#6b7280", Icon: "MessageCircle", Active: true},
	}
	for i := range topics {
		if err := gdb.Create(&topics[i]).Error; err != nil {
			return fmt.Errorf("create topic %s: %w", topics[i].Name, err)
		}
	}
	log.Info("initial topics created", "count", len(topics))
	return nil
}
