package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "recallbox",
			Password: "secret", Name: "recallbox", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		LLM: LLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: time.Minute},
		Metering: MeteringConfig{
			FreeAllowance: 10,
			ReadDeadline:  2 * time.Second,
			WriteDeadline: 5 * time.Second,
			BackoffBase:   250 * time.Millisecond,
			BackoffCap:    5 * time.Second,
			WriteRetries:  2,
			AdminMaxOps:   30,
			AdminWindow:   time.Minute,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "mistral"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Fatalf("expected LLM_PROVIDER error, got: %v", err)
	}
}

func TestValidate_MeteringDeadlines(t *testing.T) {
	cfg := validConfig()
	cfg.Metering.ReadDeadline = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "METERING_READ_DEADLINE") {
		t.Fatalf("expected METERING_READ_DEADLINE error, got: %v", err)
	}
}

func TestValidate_BackoffCapBelowBase(t *testing.T) {
	cfg := validConfig()
	cfg.Metering.BackoffBase = 10 * time.Second
	cfg.Metering.BackoffCap = time.Second
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "METERING_BACKOFF_BASE") {
		t.Fatalf("expected backoff error, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	cfg.LLM.APIKey = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DB_PASSWORD") || !strings.Contains(err.Error(), "LLM_API_KEY") {
		t.Fatalf("expected both errors collected, got: %v", err)
	}
}
