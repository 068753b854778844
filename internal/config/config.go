package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs. Values come from an optional YAML
// file (CONFIG_FILE) with environment variables taking precedence, so a bare
// container can still run on env alone.
type Config struct {
	Port        string  `yaml:"port"`
	DatabaseURL string  `yaml:"databaseUrl"`
	RedisURL    string  `yaml:"redisUrl"`
	UploadDir   string  `yaml:"uploadDir"`
	Geo         GeoCfg  `yaml:"geo"`
	Tracking    TrackCfg `yaml:"tracking"`
}

type GeoCfg struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	// Origin is the pharmacy's own address used as route start/return point.
	OriginLat float64 `yaml:"originLat"`
	OriginLng float64 `yaml:"originLng"`
}

type TrackCfg struct {
	// ReportInterval is the reporter's poll backstop; RefreshInterval the
	// aggregator's timer fallback. Both default to 30s.
	ReportInterval  time.Duration `yaml:"reportInterval"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// Load reads CONFIG_FILE (if set), then overlays environment variables.
func Load() (Config, error) {
	cfg := Config{
		Port:      "8080",
		UploadDir: "./uploads",
		Tracking: TrackCfg{
			ReportInterval:  30 * time.Second,
			RefreshInterval: 30 * time.Second,
		},
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	overlay(&cfg.Port, "PORT")
	overlay(&cfg.DatabaseURL, "DATABASE_URL")
	overlay(&cfg.RedisURL, "REDIS_URL")
	overlay(&cfg.UploadDir, "UPLOAD_DIR")
	overlay(&cfg.Geo.BaseURL, "GEO_BASE_URL")
	overlay(&cfg.Geo.APIKey, "GEO_API_KEY")
	if cfg.Tracking.ReportInterval <= 0 {
		cfg.Tracking.ReportInterval = 30 * time.Second
	}
	if cfg.Tracking.RefreshInterval <= 0 {
		cfg.Tracking.RefreshInterval = 30 * time.Second
	}
	return cfg, nil
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
