package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for db-connect.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to avoid
// matching the binary itself, which Viper's built-in SetConfigName would match
// (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("db-connect")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: DB_CONNECT_DATABASE_PASSWORD
	viper.SetEnvPrefix("DB_CONNECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a db-connect config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".db-connect"),
		"/etc/db-connect",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "db-connect"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all nested config keys for environment variable
// support. Example: DB_CONNECT_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	// Database config
	_ = viper.BindEnv("database.host")
	_ = viper.BindEnv("database.port")
	_ = viper.BindEnv("database.user")
	_ = viper.BindEnv("database.password")
	_ = viper.BindEnv("database.name")
	_ = viper.BindEnv("database.ssl_mode")
	_ = viper.BindEnv("database.max_open_conns")
	_ = viper.BindEnv("database.max_idle_conns")
	_ = viper.BindEnv("database.conn_max_lifetime")
	_ = viper.BindEnv("database.query_timeout")

	// Mongo config
	_ = viper.BindEnv("mongo.uri")
	_ = viper.BindEnv("mongo.database")
	_ = viper.BindEnv("mongo.op_timeout")

	// LLM config
	_ = viper.BindEnv("llm.api_key")
	_ = viper.BindEnv("llm.model")
	_ = viper.BindEnv("llm.max_tokens")

	// Redash config
	_ = viper.BindEnv("redash.base_url")
	_ = viper.BindEnv("redash.api_key")
	_ = viper.BindEnv("redash.timeout")

	// ACL config
	_ = viper.BindEnv("acl.config_path")
	_ = viper.BindEnv("acl.cache_ttl")
	_ = viper.BindEnv("acl.negative_cache_ttl")
	_ = viper.BindEnv("acl.fallback_user_email")

	// Bridge config
	_ = viper.BindEnv("bridge.server_url")
	_ = viper.BindEnv("bridge.connect_timeout")
	_ = viper.BindEnv("bridge.call_timeout")

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
