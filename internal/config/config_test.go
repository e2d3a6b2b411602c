package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validConfig() *Config {
	return &Config{
		Market:                      "BASE/QUOTE",
		FeeRate:                     decimal.RequireFromString("0.001"),
		RecentEventsCapacity:        200,
		WithdrawalApprovalsRequired: 2,
		DatabaseType:                "inmemory",
		JWTSecret:                   "dev-secret-at-least-16-chars",
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"market without slash", func(c *Config) { c.Market = "BASEQUOTE" }},
		{"negative fee rate", func(c *Config) { c.FeeRate = decimal.RequireFromString("-0.01") }},
		{"zero recent events capacity", func(c *Config) { c.RecentEventsCapacity = 0 }},
		{"zero withdrawal approvals", func(c *Config) { c.WithdrawalApprovalsRequired = 0 }},
		{"unknown database type", func(c *Config) { c.DatabaseType = "sqlite" }},
		{"postgres without url", func(c *Config) { c.DatabaseType = "postgres"; c.DatabaseURL = "" }},
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected an error for %s", tc.name)
			}
		})
	}
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseType = "postgres"
	cfg.DatabaseURL = "postgres://localhost/wager"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("postgres with url should validate: %v", err)
	}
}
