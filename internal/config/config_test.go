package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CONFIG_FILE", "PORT", "DATABASE_URL", "REDIS_URL", "UPLOAD_DIR", "GEO_BASE_URL", "GEO_API_KEY"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.UploadDir != "./uploads" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Tracking.ReportInterval != 30*time.Second || cfg.Tracking.RefreshInterval != 30*time.Second {
		t.Fatalf("tracking defaults = %+v", cfg.Tracking)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "port: \"9000\"\nuploadDir: /srv/uploads\ngeo:\n  apiKey: file-key\n  originLat: 52.52\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("GEO_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("UPLOAD_DIR", "")
	t.Setenv("GEO_BASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env should win over file: port = %s", cfg.Port)
	}
	if cfg.UploadDir != "/srv/uploads" || cfg.Geo.APIKey != "file-key" || cfg.Geo.OriginLat != 52.52 {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
