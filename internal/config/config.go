package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the forum server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Forum    ForumConfig    `yaml:"forum"`
}

type ServerConfig struct {
	Port          string `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`

	// TrustUserHeader accepts the X-User-ID header as the caller's identity.
	// Only enable it behind a gateway that sets and strips the header.
	TrustUserHeader bool `yaml:"trust_user_header"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// SeedTopics creates the default topics when the topics table is empty.
	SeedTopics bool `yaml:"seed_topics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

type ForumConfig struct {
	// LockEntities serializes read-modify-write sequences per votable with
	// an advisory lock. Only honoured on postgres.
	LockEntities bool `yaml:"lock_entities"`
	// VoteConflictRetries is how many times the HTTP layer resubmits a vote
	// that lost a uniqueness race.
	VoteConflictRetries int           `yaml:"vote_conflict_retries"`
	CacheSize           int           `yaml:"cache_size"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	RankingInterval     time.Duration `yaml:"ranking_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			SessionSecret: "secret_key_change_me",
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			DSN:        "host=localhost user=postgres password=postgres dbname=forum port=5432 sslmode=disable",
			SeedTopics: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Forum: ForumConfig{
			VoteConflictRetries: 2,
			CacheSize:           500,
			CacheTTL:            time.Minute,
			RankingInterval:     500 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at
// path, a .env file in the working directory and finally the process
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	// .env is optional; variables already present in the environment are kept.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// no file, defaults + env only
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Server.SessionSecret = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}

	var err error
	if cfg.Server.TrustUserHeader, err = envBool("TRUST_USER_HEADER", cfg.Server.TrustUserHeader); err != nil {
		return err
	}
	if cfg.Database.SeedTopics, err = envBool("SEED_TOPICS", cfg.Database.SeedTopics); err != nil {
		return err
	}
	if cfg.Forum.LockEntities, err = envBool("LOCK_ENTITIES", cfg.Forum.LockEntities); err != nil {
		return err
	}
	if cfg.Forum.VoteConflictRetries, err = envInt("VOTE_CONFLICT_RETRIES", cfg.Forum.VoteConflictRetries); err != nil {
		return err
	}
	if cfg.Forum.CacheSize, err = envInt("CACHE_SIZE", cfg.Forum.CacheSize); err != nil {
		return err
	}
	if cfg.Forum.CacheTTL, err = envDuration("CACHE_TTL", cfg.Forum.CacheTTL); err != nil {
		return err
	}
	if cfg.Forum.RankingInterval, err = envDuration("RANKING_INTERVAL", cfg.Forum.RankingInterval); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Forum.VoteConflictRetries < 0 {
		return fmt.Errorf("vote_conflict_retries must be >= 0, got %d", c.Forum.VoteConflictRetries)
	}
	if c.Forum.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be > 0, got %d", c.Forum.CacheSize)
	}
	return nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
