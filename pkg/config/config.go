package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the server configuration. Values come from the process
// environment, with a .env file filling in anything unset.
type Config struct {
	Env  string `mapstructure:"ENV"`
	Port string `mapstructure:"PORT"`

	DBDriver      string `mapstructure:"DB_DRIVER"`
	MySQLHost     string `mapstructure:"MYSQL_HOST"`
	MySQLPort     string `mapstructure:"MYSQL_PORT"`
	MySQLUser     string `mapstructure:"MYSQL_USER"`
	MySQLPassword string `mapstructure:"MYSQL_PASSWORD"`
	MySQLDatabase string `mapstructure:"MYSQL_DATABASE"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID string   `mapstructure:"KAFKA_GROUP_ID"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTExpiry time.Duration `mapstructure:"JWT_EXPIRY"`

	YouTubeAPIKey  string   `mapstructure:"YOUTUBE_API_KEY"`
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	SweepSchedule    string        `mapstructure:"SWEEP_SCHEDULE"`
	EvictSchedule    string        `mapstructure:"EVICT_SCHEDULE"`
	IdleTimeout      time.Duration `mapstructure:"ROOM_IDLE_TIMEOUT"`
	SnapshotCacheTTL time.Duration `mapstructure:"SNAPSHOT_CACHE_TTL"`
}

var defaults = map[string]interface{}{
	"ENV":                "development",
	"PORT":               "8080",
	"DB_DRIVER":          DriverMySQL,
	"MYSQL_HOST":         "localhost",
	"MYSQL_PORT":         "3306",
	"MYSQL_USER":         "root",
	"MYSQL_PASSWORD":     "",
	"MYSQL_DATABASE":     "worship_room",
	"DATABASE_URL":       "",
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"KAFKA_BROKERS":      "",
	"KAFKA_TOPIC":        "worship-room-events",
	"KAFKA_GROUP_ID":     "worship-room-ws",
	"JWT_SECRET":         "",
	"JWT_ISSUER":         "worship-room-service",
	"JWT_EXPIRY":         "168h",
	"YOUTUBE_API_KEY":    "",
	"ALLOWED_ORIGINS":    "http://localhost:5173",
	"SWEEP_SCHEDULE":     "@every 1m",
	"EVICT_SCHEDULE":     "@every 5m",
	"ROOM_IDLE_TIMEOUT":  "30m",
	"SNAPSHOT_CACHE_TTL": "10m",
}

// Load reads the given env files (".env" when none are named) into the
// process environment and decodes the result. A missing file is not an
// error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read %s: %w", f, err)
			}
			log.Printf("Warning: %s not found, using environment only", f)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.AllowedOrigins = compact(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver == DriverPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres driver")
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in production")
		}
		if c.DBDriver == DriverMemory {
			return errors.New("the memory driver cannot be used in production")
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-secret"
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// compact splits comma-joined entries and drops blanks, since a list read
// from a single env var arrives as one element.
func compact(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
