package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"

	"github.com/ownlytics/mcptix-sub000/internal/logging"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
)

// Config captures the settings of the mcptix service. Values come from an
// optional YAML file overlaid by MCPTIX_ environment variables.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`

	// RenormalizeSchedule is a standard cron expression. Empty disables the job.
	RenormalizeSchedule string `yaml:"renormalize_schedule" env:"MCPTIX_RENORMALIZE_SCHEDULE"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"MCPTIX_HTTP_HOST" env-default:"127.0.0.1"`
	Port            int           `yaml:"port" env:"MCPTIX_HTTP_PORT" env-default:"3000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MCPTIX_HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr renders the listen address.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type DatabaseConfig struct {
	Path        string        `yaml:"path" env:"MCPTIX_DB_PATH" env-default:".mcptix/data/mcptix.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"MCPTIX_DB_BUSY_TIMEOUT" env-default:"30s"`
	JournalMode string        `yaml:"journal_mode" env:"MCPTIX_DB_JOURNAL_MODE" env-default:"WAL"`

	// TargetVersion is the schema version bootstrapped on startup; 0 means latest.
	TargetVersion int `yaml:"target_version" env:"MCPTIX_DB_TARGET_VERSION" env-default:"0"`
}

// SQLite converts the database settings into a connection configuration.
func (c DatabaseConfig) SQLite() migration.SQLiteConfig {
	cfg := migration.DefaultSQLiteConfig(c.Path)
	cfg.BusyTimeout = c.BusyTimeout
	cfg.JournalMode = strings.ToUpper(c.JournalMode)
	return cfg
}

type LogConfig struct {
	Level  string `yaml:"level" env:"MCPTIX_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"MCPTIX_LOG_FORMAT" env-default:"text"`
}

// Logging converts the log settings for logging.New.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

// Load reads the configuration. When path is empty only the environment is
// consulted.
func Load(path string) (Config, error) {
	var cfg Config

	if path = strings.TrimSpace(path); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, fmt.Sprintf("MCPTIX_HTTP_PORT=%d", c.HTTP.Port))
	}
	if c.HTTP.ShutdownTimeout < 0 {
		invalid = append(invalid, "MCPTIX_HTTP_SHUTDOWN_TIMEOUT")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		invalid = append(invalid, "MCPTIX_DB_PATH")
	}
	if c.Database.TargetVersion < 0 {
		invalid = append(invalid, "MCPTIX_DB_TARGET_VERSION")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		invalid = append(invalid, "MCPTIX_LOG_LEVEL="+c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		invalid = append(invalid, "MCPTIX_LOG_FORMAT="+c.Log.Format)
	}
	if spec := strings.TrimSpace(c.RenormalizeSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			invalid = append(invalid, "MCPTIX_RENORMALIZE_SCHEDULE="+spec)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}
