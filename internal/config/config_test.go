package config

import (
	"strings"
	"testing"
)

// validConfig returns a minimal configuration that passes validation.
func validConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Host: "db.internal",
			User: "readonly",
			Name: "analytics",
		},
		Mongo: MongoConfig{
			URI: "mongodb://localhost:27017",
		},
		LLM: LLMConfig{
			APIKey: "sk-test",
		},
		ACL: ACLConfig{
			ConfigPath: "acl.yaml",
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want 127.0.0.1:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want 10", cfg.Database.MaxOpenConns)
	}
	if cfg.Mongo.Database != "db_connect" {
		t.Errorf("Mongo.Database = %q, want db_connect", cfg.Mongo.Database)
	}
	if cfg.ACL.CacheTTL != "5m" {
		t.Errorf("ACL.CacheTTL = %q, want 5m", cfg.ACL.CacheTTL)
	}
	if cfg.ACL.NegativeCacheTTL != "30s" {
		t.Errorf("ACL.NegativeCacheTTL = %q, want 30s", cfg.ACL.NegativeCacheTTL)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("LLM.MaxTokens = %d, want 4096", cfg.LLM.MaxTokens)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "required",
		},
		{
			name:    "missing llm api key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantErr: "required",
		},
		{
			name:    "missing acl config path",
			mutate:  func(c *Config) { c.ACL.ConfigPath = "" },
			wantErr: "required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "must be one of",
		},
		{
			name:    "unparseable duration",
			mutate:  func(c *Config) { c.Database.QueryTimeout = "thirty seconds" },
			wantErr: "invalid duration",
		},
		{
			name:    "redash url without key",
			mutate:  func(c *Config) { c.Redash.BaseURL = "https://redash.example.com" },
			wantErr: "must be set together",
		},
		{
			name: "redash url with key passes",
			mutate: func(c *Config) {
				c.Redash.BaseURL = "https://redash.example.com"
				c.Redash.APIKey = "rk-test"
			},
		},
		{
			name:    "bad fallback email",
			mutate:  func(c *Config) { c.ACL.FallbackUserEmail = "not-an-email" },
			wantErr: "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:    "db.internal",
		Port:    5432,
		User:    "readonly",
		Name:    "analytics",
		SSLMode: "require",
	}

	got := d.DSN()
	want := "host=db.internal port=5432 user=readonly dbname=analytics sslmode=require"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	d.Password = "hunter2"
	if got := d.DSN(); !strings.HasSuffix(got, " password=hunter2") {
		t.Errorf("DSN() with password = %q, want password suffix", got)
	}
}

func TestSetDevDefaults(t *testing.T) {
	cfg := &Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug in dev mode", cfg.Server.LogLevel)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost in dev mode", cfg.Database.Host)
	}

	// Dev defaults never fire outside dev mode.
	cfg = &Config{}
	cfg.SetDefaults()
	cfg.SetDevDefaults()
	if cfg.Database.Host != "" {
		t.Errorf("Database.Host = %q, want empty outside dev mode", cfg.Database.Host)
	}
}
