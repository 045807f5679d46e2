package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type Config struct {
	Server struct {
		Port                string `toml:"port"`
		BaseDomain          string `toml:"base_domain"`
		StaticDir           string `toml:"static_dir"`
		ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	} `toml:"server"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Cache struct {
		Enabled    bool   `toml:"enabled"`
		RedisURL   string `toml:"redis_url"`
		TTLSeconds int    `toml:"ttl_seconds"`
	} `toml:"cache"`

	Upload struct {
		MaxRows           int     `toml:"max_rows"`
		MaxBytes          int64   `toml:"max_bytes"`
		TimeoutSeconds    int     `toml:"timeout_seconds"`
		DefaultMaxPoints  float64 `toml:"default_max_points"`
		ExtraCreditFactor float64 `toml:"extra_credit_factor"`
	} `toml:"upload"`

	Tenants struct {
		Reserved []string `toml:"reserved"`
	} `toml:"tenants"`

	Export struct {
		Enabled  bool     `toml:"enabled"`
		Schedule string   `toml:"schedule"`
		Dir      string   `toml:"dir"`
		Tenants  []string `toml:"tenants"`
	} `toml:"export"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s\n> Error: %w", path, err)
	}
	return config, nil
}

func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	logger.Debug.Printf("Loaded upload config: %+v", config.Upload)
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "static"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 90
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "./migrations"
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Upload.MaxRows == 0 {
		c.Upload.MaxRows = 5000
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if c.Upload.TimeoutSeconds == 0 {
		c.Upload.TimeoutSeconds = 60
	}
	if c.Upload.DefaultMaxPoints == 0 {
		c.Upload.DefaultMaxPoints = 100
	}
	if c.Upload.ExtraCreditFactor == 0 {
		c.Upload.ExtraCreditFactor = 1.5
	}
	if c.Export.Schedule == "" {
		c.Export.Schedule = "0 3 * * *"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("Server port is not specified in config, use a value like :8000")
	}
	if c.Server.BaseDomain == "" {
		return fmt.Errorf("Server base_domain is not specified in config, use a value like gradeinsight.com")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("Database dsn is not specified in config")
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache is enabled but redis_url is empty")
	}
	if c.Upload.DefaultMaxPoints < 0 {
		return fmt.Errorf("upload default_max_points must be positive, got %g", c.Upload.DefaultMaxPoints)
	}
	if c.Upload.ExtraCreditFactor < 1 {
		return fmt.Errorf("upload extra_credit_factor must be at least 1, got %g", c.Upload.ExtraCreditFactor)
	}
	if c.Upload.MaxRows < 0 || c.Upload.MaxBytes < 0 || c.Upload.TimeoutSeconds < 0 {
		return fmt.Errorf("upload limits must not be negative")
	}
	return nil
}
