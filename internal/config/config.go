// Package config loads process-wide configuration once at startup.
// All consumers receive an explicit *Config; nothing reads the
// environment after Load returns.
package config

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/viper"
)

// vaultKeySize is the required decoded length of the vault key (AES-256).
const vaultKeySize = 32

// ConfigError marks a missing or malformed startup setting. It is fatal:
// callers log it and exit, they never retry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds every process-wide setting the pipeline needs.
type Config struct {
	// Google application identity. Shared by all users; per-user OAuth
	// tokens live encrypted in the store.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// VaultKey is the AES-256 key protecting OAuth tokens at rest.
	VaultKey []byte

	// BaseCurrency is the single currency transactions are recorded in.
	BaseCurrency string

	// GmailQuery is the provider-side search filter for payment
	// notification mails. A date lower bound is appended per run.
	GmailQuery string

	// CreditKeywords classify a message as an incoming-funds notification.
	// Changing this changes which historical mails get excluded, so the
	// default is part of the contract.
	CreditKeywords []string

	// RecentWindowDays and RecentPageSize bound the "recent" import mode.
	RecentWindowDays int
	RecentPageSize   int64

	// BigQuery location of the transaction store.
	ProjectID string
	DatasetID string

	// Notion export is optional; empty token disables it.
	NotionToken      string
	NotionDatabaseID string
}

// Load reads configuration from the environment (BUDGET_ prefix) and an
// optional config file, applies defaults, and validates. Any validation
// failure is a *ConfigError.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUDGET")
	v.AutomaticEnv()

	v.SetConfigName("budget-tracker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config")
	// A config file is optional; env vars alone are enough.
	_ = v.ReadInConfig()

	v.SetDefault("base_currency", "SGD")
	v.SetDefault("gmail_query", `from:(ibanking.alert@dbs.com OR paylah.alert@dbs.com) subject:(transaction OR payment)`)
	v.SetDefault("credit_keywords", []string{"receive", "received", "receiving", "credit", "credited"})
	v.SetDefault("recent_window_days", 7)
	v.SetDefault("recent_page_size", 25)
	v.SetDefault("dataset_id", "budget")

	cfg := &Config{
		GoogleClientID:     v.GetString("google_client_id"),
		GoogleClientSecret: v.GetString("google_client_secret"),
		GoogleRedirectURL:  v.GetString("google_redirect_url"),
		BaseCurrency:       v.GetString("base_currency"),
		GmailQuery:         v.GetString("gmail_query"),
		CreditKeywords:     v.GetStringSlice("credit_keywords"),
		RecentWindowDays:   v.GetInt("recent_window_days"),
		RecentPageSize:     v.GetInt64("recent_page_size"),
		ProjectID:          v.GetString("project_id"),
		DatasetID:          v.GetString("dataset_id"),
		NotionToken:        v.GetString("notion_token"),
		NotionDatabaseID:   v.GetString("notion_database_id"),
	}

	key, err := decodeVaultKey(v.GetString("vault_key"))
	if err != nil {
		return nil, err
	}
	cfg.VaultKey = key

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeVaultKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, &ConfigError{Field: "vault_key", Reason: "not set"}
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &ConfigError{Field: "vault_key", Reason: "not valid base64"}
	}
	if len(key) != vaultKeySize {
		return nil, &ConfigError{
			Field:  "vault_key",
			Reason: fmt.Sprintf("decoded to %d bytes, want %d", len(key), vaultKeySize),
		}
	}
	return key, nil
}

func (c *Config) validate() error {
	if c.GoogleClientID == "" {
		return &ConfigError{Field: "google_client_id", Reason: "not set"}
	}
	if c.GoogleClientSecret == "" {
		return &ConfigError{Field: "google_client_secret", Reason: "not set"}
	}
	if c.GoogleRedirectURL == "" {
		return &ConfigError{Field: "google_redirect_url", Reason: "not set"}
	}
	if c.ProjectID == "" {
		return &ConfigError{Field: "project_id", Reason: "not set"}
	}
	if len(c.CreditKeywords) == 0 {
		return &ConfigError{Field: "credit_keywords", Reason: "must not be empty"}
	}
	if c.RecentWindowDays <= 0 {
		return &ConfigError{Field: "recent_window_days", Reason: "must be positive"}
	}
	if c.RecentPageSize <= 0 {
		return &ConfigError{Field: "recent_page_size", Reason: "must be positive"}
	}
	return nil
}
