package config

import (
	"encoding/base64"
	"errors"
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BUDGET_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("BUDGET_GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("BUDGET_GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback")
	t.Setenv("BUDGET_PROJECT_ID", "test-project")
	t.Setenv("BUDGET_VAULT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.VaultKey) != 32 {
		t.Errorf("VaultKey length = %d, want 32", len(cfg.VaultKey))
	}
	if cfg.BaseCurrency != "SGD" {
		t.Errorf("BaseCurrency = %q, want default SGD", cfg.BaseCurrency)
	}
	if cfg.RecentWindowDays != 7 {
		t.Errorf("RecentWindowDays = %d, want default 7", cfg.RecentWindowDays)
	}
	if len(cfg.CreditKeywords) == 0 {
		t.Error("CreditKeywords should have a default")
	}
}

func TestLoad_MissingVaultKey(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("BUDGET_VAULT_KEY")

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
	if cfgErr.Field != "vault_key" {
		t.Errorf("ConfigError.Field = %q, want vault_key", cfgErr.Field)
	}
}

func TestLoad_VaultKeyWrongLength(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUDGET_VAULT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
}

func TestLoad_VaultKeyNotBase64(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUDGET_VAULT_KEY", "not base64 at all!!!")

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
}

func TestLoad_MissingClientID(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("BUDGET_GOOGLE_CLIENT_ID")

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
	if cfgErr.Field != "google_client_id" {
		t.Errorf("ConfigError.Field = %q, want google_client_id", cfgErr.Field)
	}
}
