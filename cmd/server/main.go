package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"forumcore/internal/config"
	"forumcore/internal/db"
	"forumcore/internal/metrics"
	"forumcore/internal/services"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "forumd",
	Short:         "Forum server with vote, comment and view counters",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"path to the YAML config file (missing file means defaults + env)")
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every subcommand needs before it can do its job.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
	forum   *services.Forum
}

// setup loads config, opens and migrates the database and builds the forum.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log)

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if err := db.Migrate(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	if cfg.Database.SeedTopics {
		if err := db.SeedTopics(gdb, logger); err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
	}

	m := metrics.New()
	forum, err := services.New(gdb, cfg.Forum, m, logger)
	if err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("build services: %w", err)
	}
	return &app{cfg: cfg, log: logger, db: gdb, metrics: m, forum: forum}, nil
}

func (a *app) close() {
	if err := db.Close(a.db); err != nil {
		a.log.Error("close database", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
