package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/example/camp-logistics/internal/application"
)

// Store drivers accepted by CAMP_STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures environment driven configuration values for the camp console.
type Config struct {
	StoreDriver string `env:"CAMP_STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"CAMP_SQLITE_PATH" envDefault:"camp.db"`
	PostgresDSN string `env:"CAMP_POSTGRES_DSN"`

	RedisAddr    string `env:"CAMP_REDIS_ADDR"`
	RedisChannel string `env:"CAMP_REDIS_CHANNEL" envDefault:"camp:changes"`

	ExportS3Bucket    string `env:"CAMP_EXPORT_S3_BUCKET"`
	ExportS3Region    string `env:"CAMP_EXPORT_S3_REGION" envDefault:"us-east-1"`
	ExportS3Endpoint  string `env:"CAMP_EXPORT_S3_ENDPOINT"`
	ExportS3PathStyle bool   `env:"CAMP_EXPORT_S3_PATH_STYLE" envDefault:"false"`
	ExportDir         string `env:"CAMP_EXPORT_DIR" envDefault:"exports"`

	MetricsTextfile string `env:"CAMP_METRICS_TEXTFILE"`

	LogLevel  string `env:"CAMP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CAMP_LOG_FORMAT" envDefault:"json"`

	CheckInWindowStart int    `env:"CAMP_CHECKIN_WINDOW_START" envDefault:"8"`
	CheckInWindowEnd   int    `env:"CAMP_CHECKIN_WINDOW_END" envDefault:"19"`
	Timezone           string `env:"CAMP_TIMEZONE" envDefault:"UTC"`

	OperatorCodeHash string `env:"CAMP_OPERATOR_CODE_HASH"`

	// Location is resolved from Timezone by Load.
	Location *time.Location `env:"-"`
}

// Load parses configuration values from the current process environment.
//
// Defaults apply to optional fields. Missing and invalid values are reported
// together so an operator can fix the environment in one pass.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment values: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.OperatorCodeHash = strings.TrimSpace(cfg.OperatorCodeHash)

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	switch cfg.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			missing = append(missing, "CAMP_SQLITE_PATH")
		}
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			missing = append(missing, "CAMP_POSTGRES_DSN")
		}
	case DriverMemory:
	default:
		invalid = append(invalid, "CAMP_STORE_DRIVER")
	}

	if cfg.RedisAddr != "" && strings.TrimSpace(cfg.RedisChannel) == "" {
		missing = append(missing, "CAMP_REDIS_CHANNEL")
	}

	if !validHour(cfg.CheckInWindowStart) {
		invalid = append(invalid, "CAMP_CHECKIN_WINDOW_START")
	}
	if !validHour(cfg.CheckInWindowEnd) || cfg.CheckInWindowEnd < cfg.CheckInWindowStart {
		invalid = append(invalid, "CAMP_CHECKIN_WINDOW_END")
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		invalid = append(invalid, "CAMP_TIMEZONE")
	}
	cfg.Location = loc

	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid = append(invalid, "CAMP_LOG_LEVEL")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json", "text":
	default:
		invalid = append(invalid, "CAMP_LOG_FORMAT")
	}

	cfg.OperatorCodeHash = strings.TrimSpace(cfg.OperatorCodeHash)
	if cfg.OperatorCodeHash != "" {
		if err := application.ValidateOperatorCodeHash(cfg.OperatorCodeHash); err != nil {
			invalid = append(invalid, "CAMP_OPERATOR_CODE_HASH")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// LiveUpdatesEnabled reports whether a Redis address was configured.
func (c Config) LiveUpdatesEnabled() bool {
	return c.RedisAddr != ""
}

// S3ExportEnabled reports whether exports go to S3 instead of the export directory.
func (c Config) S3ExportEnabled() bool {
	return strings.TrimSpace(c.ExportS3Bucket) != ""
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
