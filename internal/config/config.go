package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Images   ImagesConfig   `yaml:"images"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Accounts []string       `yaml:"accounts"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ImagesConfig configures local image storage.
type ImagesConfig struct {
	Dir string `yaml:"dir"`
}

// RedditConfig configures the Reddit API client.
type RedditConfig struct {
	UserAgent string `yaml:"user_agent"`
	Limit     int    `yaml:"limit"`
	Pause     string `yaml:"pause"`
}

// ParsePause returns the courtesy pause between remote calls.
func (r RedditConfig) ParsePause() time.Duration {
	d, err := time.ParseDuration(r.Pause)
	if err != nil {
		return time.Second
	}
	return d
}

// ScheduleConfig configures the monitoring interval.
type ScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// ParseInterval returns the monitoring interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./redwatch.db"},
		Images:   ImagesConfig{Dir: "./static/images"},
		Reddit: RedditConfig{
			UserAgent: "redwatch/1.0 (https://github.com/redwatchio/redwatch)",
			Limit:     100,
			Pause:     "1s",
		},
		Schedule: ScheduleConfig{Interval: "30m"},
		Server:   ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REDWATCH_IMAGES_DIR"); v != "" {
		cfg.Images.Dir = v
	}
	if v := os.Getenv("REDWATCH_USER_AGENT"); v != "" {
		cfg.Reddit.UserAgent = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
