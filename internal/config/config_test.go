package config

import (
	"os"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gemchat")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("JWT_SECRET", "s")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.LLMBaseURL != "https://api.openai.com/v1" {
		t.Errorf("LLMBaseURL = %q", cfg.LLMBaseURL)
	}
	if cfg.LLMModel != "gemini-2.5-flash" {
		t.Errorf("LLMModel = %q", cfg.LLMModel)
	}
	if cfg.JWTAccessTTLMinutes != 60 || cfg.JWTRefreshTTLMinutes != 43200 {
		t.Errorf("unexpected TTLs: %d %d", cfg.JWTAccessTTLMinutes, cfg.JWTRefreshTTLMinutes)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gemchat")
	t.Setenv("JWT_SECRET", "s")
	// t.Setenv registra la restauración; Unsetenv deja la variable ausente
	// durante el test.
	t.Setenv("LLM_API_KEY", "")
	os.Unsetenv("LLM_API_KEY")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when LLM_API_KEY is missing")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "5")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPPort != "9090" || cfg.JWTAccessTTLMinutes != 5 || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
