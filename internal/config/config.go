// Package config loads recall's settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/srs"
)

// EnvPrefix is the prefix of environment variables read by Load.
// RECALL_DB__DSN sets db.dsn.
const EnvPrefix = "RECALL_"

type Config struct {
	DB     DBConfig     `koanf:"db"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	SRS    SRSConfig    `koanf:"srs"`
	Queue  QueueConfig  `koanf:"queue"`
	Sync   SyncConfig   `koanf:"sync"`
}

type DBConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type ServerConfig struct {
	Addr        string   `koanf:"addr" validate:"required"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SRSConfig holds the global scheduling defaults used by decks without
// an override.
type SRSConfig struct {
	srs.Config   `koanf:",squash"`
	DayStartHour int `koanf:"day_start_hour" validate:"min=0,max=23"`
}

type QueueConfig struct {
	NewCap      int `koanf:"new_cap" validate:"min=1"`
	NewBatch    int `koanf:"new_batch" validate:"min=1"`
	ReviewBatch int `koanf:"review_batch" validate:"min=1"`
	BatchSize   int `koanf:"batch_size" validate:"min=1"`
}

// Options returns the queue options implied by the configuration for mode.
func (q QueueConfig) Options(mode queue.Mode) queue.Options {
	return queue.Options{
		Mode:        mode,
		NewCap:      q.NewCap,
		NewBatch:    q.NewBatch,
		ReviewBatch: q.ReviewBatch,
		BatchSize:   q.BatchSize,
	}
}

type SyncConfig struct {
	ReposDir string        `koanf:"repos_dir" validate:"required"`
	Interval time.Duration `koanf:"interval" validate:"min=0"`
}

func defaults() map[string]any {
	d := srs.DefaultConfig()
	return map[string]any{
		"db.driver":           "sqlite",
		"db.dsn":              "recall.db",
		"server.addr":         ":8080",
		"server.cors_origins": []string{"*"},
		"log.level":           "info",
		"log.format":          "text",
		"srs.again_days":      d.AgainDays,
		"srs.hard_days":       d.HardDays,
		"srs.good_days":       d.GoodDays,
		"srs.easy_days":       d.EasyDays,
		"srs.variant":         string(d.Variant),
		"srs.day_start_hour":  srs.DefaultDayStartHour,
		"queue.new_cap":       queue.DefaultNewCap,
		"queue.new_batch":     queue.DefaultNewBatch,
		"queue.review_batch":  queue.DefaultReviewBatch,
		"queue.batch_size":    queue.DefaultBatchSize,
		"sync.repos_dir":      "repos",
		"sync.interval":       time.Duration(0),
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db-driver":     "db.driver",
	"db-dsn":        "db.dsn",
	"addr":          "server.addr",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"repos-dir":     "sync.repos_dir",
	"sync-interval": "sync.interval",
	"new-cap":       "queue.new_cap",
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to a .env file loaded before reading the environment")
	flags.String("db-driver", "sqlite", "Database driver (sqlite or postgres)")
	flags.String("db-dsn", "recall.db", "Database connection string")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
	flags.String("repos-dir", "repos", "Directory git sources are cloned into")
	flags.Duration("sync-interval", 0, "Interval between periodic syncs (0 disables)")
	flags.Int("new-cap", queue.DefaultNewCap, "Maximum new cards per day in srs mode")
}

// Load reads the configuration. flags must have been populated by
// RegisterFlags and parsed; it may be nil to skip flags. Out-of-range
// scheduling offsets are clamped and reported through logger.
func Load(flags *pflag.FlagSet, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	k := koanf.New(".")

	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	envFile, path := ".env", ""
	if flags != nil {
		envFile, _ = flags.GetString("env-file")
		path, _ = flags.GetString("config")
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.SRS.Config.Validate(); err != nil {
		logger.Warn("scheduling defaults out of range, clamping", "error", err)
		cfg.SRS.Config = cfg.SRS.Config.Clamp()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns RECALL_SYNC__REPOS_DIR into sync.repos_dir.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
