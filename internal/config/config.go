package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string
	Env               string
	DBURL             string
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	MigrateOnStart    bool

	ProgressDir        string
	ProgressInMemory   bool
	ProgressMaxRetries int

	GraphURL         string
	GraphUser        string
	GraphPassword    string
	GraphDatabase    string
	GraphTimeoutSecs int

	RollbarToken string

	StrictClassMembership bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "DEV")
	v.SetDefault("DB_URL", "")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_SECS", 300)
	v.SetDefault("DB_MAX_CONN_LIFETIME_SECS", 3600)
	v.SetDefault("DB_CONN_TIMEOUT_SECS", 10)
	v.SetDefault("DB_STATEMENT_CACHE_CAPACITY", 256)
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("PROGRESS_DIR", "data/progress")
	v.SetDefault("PROGRESS_IN_MEMORY", false)
	v.SetDefault("PROGRESS_MAX_RETRIES", 10)
	v.SetDefault("GRAPH_URL", "")
	v.SetDefault("GRAPH_USER", "neo4j")
	v.SetDefault("GRAPH_PASSWORD", "")
	v.SetDefault("GRAPH_DATABASE", "neo4j")
	v.SetDefault("GRAPH_TIMEOUT_SECS", 3)
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("STRICT_CLASS_MEMBERSHIP", false)
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	v := newViper()
	cfg := Config{
		Port:                  v.GetString("PORT"),
		Env:                   v.GetString("ENV"),
		DBURL:                 v.GetString("DB_URL"),
		ReadTimeoutSecs:       v.GetInt("SERVER_READ_TIMEOUT"),
		WriteTimeoutSecs:      v.GetInt("SERVER_WRITE_TIMEOUT"),
		IdleTimeoutSecs:       v.GetInt("SERVER_IDLE_TIMEOUT"),
		DBMaxConns:            v.GetInt("DB_MAX_CONNS"),
		DBMinConns:            v.GetInt("DB_MIN_CONNS"),
		DBMaxIdleSecs:         v.GetInt("DB_MAX_CONN_IDLE_SECS"),
		DBMaxLifeSecs:         v.GetInt("DB_MAX_CONN_LIFETIME_SECS"),
		DBConnTimeoutSecs:     v.GetInt("DB_CONN_TIMEOUT_SECS"),
		DBStatementCache:      v.GetInt("DB_STATEMENT_CACHE_CAPACITY"),
		MigrateOnStart:        v.GetBool("MIGRATE_ON_START"),
		ProgressDir:           v.GetString("PROGRESS_DIR"),
		ProgressInMemory:      v.GetBool("PROGRESS_IN_MEMORY"),
		ProgressMaxRetries:    v.GetInt("PROGRESS_MAX_RETRIES"),
		GraphURL:              v.GetString("GRAPH_URL"),
		GraphUser:             v.GetString("GRAPH_USER"),
		GraphPassword:         v.GetString("GRAPH_PASSWORD"),
		GraphDatabase:         v.GetString("GRAPH_DATABASE"),
		GraphTimeoutSecs:      v.GetInt("GRAPH_TIMEOUT_SECS"),
		RollbarToken:          v.GetString("ROLLBAR_TOKEN"),
		StrictClassMembership: v.GetBool("STRICT_CLASS_MEMBERSHIP"),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if !cfg.ProgressInMemory && cfg.ProgressDir == "" {
		return Config{}, fmt.Errorf("PROGRESS_DIR is required unless PROGRESS_IN_MEMORY is set")
	}
	if cfg.ProgressMaxRetries <= 0 {
		return Config{}, fmt.Errorf("PROGRESS_MAX_RETRIES must be positive")
	}
	if cfg.GraphURL != "" {
		u, err := url.Parse(cfg.GraphURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("GRAPH_URL must be an absolute URL")
		}
	}
	if cfg.GraphTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("GRAPH_TIMEOUT_SECS must be positive")
	}

	return cfg, nil
}
