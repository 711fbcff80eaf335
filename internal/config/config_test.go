package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL", "PORT", "SD_API_URL", "SD_API_TIMEOUT", "SD_PROBE_TIMEOUT",
		"UPLOADS_DIR", "GENERATED_DIR", "STATIC_DIR", "PUBLIC_BASE_URL", "CORS_ALLOWED_ORIGINS",
		"MAX_BODY_BYTES", "HTTP_READ_TIMEOUT", "HTTP_IDLE_TIMEOUT",
	} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "3000" || cfg.Addr() != ":3000" {
		t.Fatalf("unexpected port: %q", cfg.Port)
	}
	if cfg.SDAPIURL != "http://localhost:7860" {
		t.Fatalf("unexpected SD_API_URL: %q", cfg.SDAPIURL)
	}
	if cfg.SDAPITimeout != 5*time.Minute || cfg.SDProbeTimeout != 5*time.Second {
		t.Fatalf("unexpected timeouts: %s %s", cfg.SDAPITimeout, cfg.SDProbeTimeout)
	}
	if cfg.GeneratedDir != "generated" || cfg.UploadsDir != "uploads" {
		t.Fatalf("unexpected dirs: %q %q", cfg.GeneratedDir, cfg.UploadsDir)
	}
	if cfg.MaxBodyBytes != 50<<20 {
		t.Fatalf("unexpected body limit: %d", cfg.MaxBodyBytes)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected CORS origins: %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.ImageURLPrefix() != "/generated" {
		t.Fatalf("unexpected image url prefix: %q", cfg.ImageURLPrefix())
	}
	if cfg.HTTPWriteTimeout() <= cfg.SDAPITimeout {
		t.Fatalf("write timeout must exceed the generation timeout")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("SD_API_URL", "http://gpu-box:7860")
	t.Setenv("SD_API_TIMEOUT", "10m")
	t.Setenv("PUBLIC_BASE_URL", "https://panel.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://panel.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.SDAPIURL != "http://gpu-box:7860" || cfg.SDAPITimeout != 10*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ImageURLPrefix() != "https://panel.example.com/generated" {
		t.Fatalf("unexpected image url prefix: %q", cfg.ImageURLPrefix())
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected CORS origins: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("SD_API_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

// unsetenv removes key for the duration of the test. envconfig treats an
// empty variable as set, so t.Setenv(key, "") alone would skip defaults.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}
