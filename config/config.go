// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Datasets DatasetsConfig `yaml:"datasets"`
	Model    ModelConfig    `yaml:"model"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	Timeout        time.Duration `yaml:"timeout" validate:"min=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      int           `yaml:"rate_limit" validate:"min=0"` // 每分钟每IP请求数, 0 关闭
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"min=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type LogConfig struct {
	Level  string        `yaml:"level" validate:"oneof=debug info warn error"`
	Format string        `yaml:"format" validate:"oneof=json console"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotating file sink when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
	Compress   bool   `yaml:"compress"`
}

type DatasetsConfig struct {
	Dir       string        `yaml:"dir" validate:"required"`
	TestRatio float64       `yaml:"test_ratio" validate:"gte=0,lt=1"`
	Seed      int64         `yaml:"seed"`
	Watch     bool          `yaml:"watch"`
	Debounce  time.Duration `yaml:"debounce" validate:"min=0"`
}

type ModelConfig struct {
	TargetCandidates []string `yaml:"target_candidates" validate:"required,min=1,dive,required"`
	ExcludedColumns  []string `yaml:"excluded_columns"`
	Importance       string   `yaml:"importance" validate:"oneof=gain static"`
	CacheSize        int      `yaml:"cache_size" validate:"min=1"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			RateLimit:      120,
			MaxBodyBytes:   1 << 20,
		},
		Database: DatabaseConfig{Path: "data/counsellor.db"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Datasets: DatasetsConfig{
			Dir:      "trainingDataSets",
			Seed:     42,
			Debounce: 500 * time.Millisecond,
		},
		Model: ModelConfig{
			TargetCandidates: []string{"College", "Suggested_Job_Role", "suggested_job_role", "suggested_job"},
			ExcludedColumns:  []string{"Tier"},
			Importance:       "gain",
			CacheSize:        1024,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DATABASE_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("DATASET_DIR"); ok && v != "" {
		c.Datasets.Dir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			messages := make([]string, 0, len(errs))
			for _, e := range errs {
				messages = append(messages, fmt.Sprintf("%s: failed %s", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}
