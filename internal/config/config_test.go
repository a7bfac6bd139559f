package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "" || !cfg.Database.Migrate {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Auth.DevHeaders {
		t.Fatalf("dev headers must be off by default")
	}
}

func TestLoadRequiresSecretOrDevHeaders(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_DEV_HEADERS", "false")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without secret")
	}

	t.Setenv("AUTH_DEV_HEADERS", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with dev headers: %v", err)
	}
	if !cfg.Auth.DevHeaders {
		t.Fatalf("expected dev headers enabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9001 || cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.Logging.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
