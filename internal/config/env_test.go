package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"SPLATNET_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("SPLATNET_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadHubConfigDefaults(t *testing.T) {
	cfg, err := LoadHubConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 7777 || cfg.ListenEndpoint != "/ws" || cfg.TickRate != 60 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionTableInterval != 500*time.Millisecond || cfg.IdleTimeout != 0 || cfg.InterpolationRate != 10 {
		t.Errorf("unexpected session defaults %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadHubConfigFromDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	contents := "SPLATNET_PORT=9100\nSPLATNET_ALLOWED_ORIGINS=http://a.example,http://b.example\nSPLATNET_IDLE_TIMEOUT=15s\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// godotenv.Load sets real process variables; make sure they are restored afterward
	t.Setenv("SPLATNET_PORT", "")
	os.Unsetenv("SPLATNET_PORT")
	t.Setenv("SPLATNET_ALLOWED_ORIGINS", "")
	os.Unsetenv("SPLATNET_ALLOWED_ORIGINS")
	t.Setenv("SPLATNET_IDLE_TIMEOUT", "")
	os.Unsetenv("SPLATNET_IDLE_TIMEOUT")

	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port %d", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("origins %v", cfg.AllowedOrigins)
	}
	if cfg.IdleTimeout != 15*time.Second {
		t.Errorf("idle timeout %v", cfg.IdleTimeout)
	}
}

func TestEnvironmentWinsOverDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SPLATNET_TICK_RATE=20\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SPLATNET_TICK_RATE", "30")

	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 30 {
		t.Fatalf("tick rate %d, want the environment's 30", cfg.TickRate)
	}
}

func TestLoadHubConfigRejectsBadTickRate(t *testing.T) {
	t.Setenv("SPLATNET_TICK_RATE", "0")

	if _, err := LoadHubConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for zero tick rate")
	}
}
